package events

import (
	"math/big"
	"strconv"

	"github.com/MRAlirad/ccip-rebase-token/core/types"
)

const (
	// TypeRateChanged is emitted when the protocol-wide rate moves.
	TypeRateChanged = "rebase.rate_changed"
	// TypeMint is emitted for explicit principal mints.
	TypeMint = "rebase.mint"
	// TypeBurn is emitted for explicit principal burns.
	TypeBurn = "rebase.burn"
	// TypeTransfer is emitted for holder to holder movements.
	TypeTransfer = "rebase.transfer"
	// TypeInterestRealized is emitted when accrued interest is folded into
	// principal.
	TypeInterestRealized = "rebase.interest_realized"
	// TypeApproval is emitted when an allowance is set.
	TypeApproval = "rebase.approval"
	// TypeCapability is emitted on capability grants and revocations.
	TypeCapability = "rebase.capability"
	// TypePause is emitted when the ledger is paused or resumed.
	TypePause = "rebase.pause"
	// TypePrincipalSupply is emitted whenever the principal supply counter
	// changes.
	TypePrincipalSupply = "rebase.principal_supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
	// SupplyReasonInterest identifies realized interest.
	SupplyReasonInterest = "interest"
)

type RateChanged struct {
	Previous  *big.Int
	Current   *big.Int
	Caller    [20]byte
	Timestamp uint64
}

func (RateChanged) EventType() string { return TypeRateChanged }

func (e RateChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeRateChanged,
		Attributes: map[string]string{
			"previous": formatAmount(e.Previous),
			"rate":     formatAmount(e.Current),
			"caller":   formatAddress(e.Caller),
		},
		Timestamp: e.Timestamp,
	}
}

type Mint struct {
	To        [20]byte
	Amount    *big.Int
	Rate      *big.Int
	Caller    [20]byte
	Timestamp uint64
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	return &types.Event{
		Type: TypeMint,
		Attributes: map[string]string{
			"to":     formatAddress(e.To),
			"amount": formatAmount(e.Amount),
			"rate":   formatAmount(e.Rate),
			"caller": formatAddress(e.Caller),
		},
		Timestamp: e.Timestamp,
	}
}

type Burn struct {
	From      [20]byte
	Amount    *big.Int
	Caller    [20]byte
	Timestamp uint64
}

func (Burn) EventType() string { return TypeBurn }

func (e Burn) Event() *types.Event {
	return &types.Event{
		Type: TypeBurn,
		Attributes: map[string]string{
			"from":   formatAddress(e.From),
			"amount": formatAmount(e.Amount),
			"caller": formatAddress(e.Caller),
		},
		Timestamp: e.Timestamp,
	}
}

type Transfer struct {
	From [20]byte
	To   [20]byte
	// Spender is set for delegated transfers only.
	Spender   [20]byte
	Amount    *big.Int
	Timestamp uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	if !zeroBytes(e.Spender[:]) {
		attrs["spender"] = formatAddress(e.Spender)
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs, Timestamp: e.Timestamp}
}

type InterestRealized struct {
	Account   [20]byte
	Interest  *big.Int
	Principal *big.Int
	Timestamp uint64
}

func (InterestRealized) EventType() string { return TypeInterestRealized }

func (e InterestRealized) Event() *types.Event {
	return &types.Event{
		Type: TypeInterestRealized,
		Attributes: map[string]string{
			"account":   formatAddress(e.Account),
			"interest":  formatAmount(e.Interest),
			"principal": formatAmount(e.Principal),
		},
		Timestamp: e.Timestamp,
	}
}

type Approval struct {
	Owner     [20]byte
	Spender   [20]byte
	Amount    *big.Int
	Timestamp uint64
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{
		Type: TypeApproval,
		Attributes: map[string]string{
			"owner":   formatAddress(e.Owner),
			"spender": formatAddress(e.Spender),
			"amount":  formatAmount(e.Amount),
		},
		Timestamp: e.Timestamp,
	}
}

type CapabilityChanged struct {
	Account    [20]byte
	Capability string
	Granted    bool
	Caller     [20]byte
	Timestamp  uint64
}

func (CapabilityChanged) EventType() string { return TypeCapability }

func (e CapabilityChanged) Event() *types.Event {
	return &types.Event{
		Type: TypeCapability,
		Attributes: map[string]string{
			"account":    formatAddress(e.Account),
			"capability": e.Capability,
			"granted":    strconv.FormatBool(e.Granted),
			"caller":     formatAddress(e.Caller),
		},
		Timestamp: e.Timestamp,
	}
}

type PauseChanged struct {
	Paused    bool
	Caller    [20]byte
	Timestamp uint64
}

func (PauseChanged) EventType() string { return TypePause }

func (e PauseChanged) Event() *types.Event {
	return &types.Event{
		Type: TypePause,
		Attributes: map[string]string{
			"paused": strconv.FormatBool(e.Paused),
			"caller": formatAddress(e.Caller),
		},
		Timestamp: e.Timestamp,
	}
}

// PrincipalSupply captures a delta of the principal supply counter. The
// counter excludes interest that has not been realized yet.
type PrincipalSupply struct {
	Total     *big.Int
	Delta     *big.Int
	Reason    string
	Timestamp uint64
}

func (PrincipalSupply) EventType() string { return TypePrincipalSupply }

func (e PrincipalSupply) Event() *types.Event {
	attrs := map[string]string{
		"total": formatAmount(e.Total),
	}
	if e.Delta != nil {
		attrs["delta"] = e.Delta.String()
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	attrs["at"] = formatTime(e.Timestamp)
	return &types.Event{Type: TypePrincipalSupply, Attributes: attrs, Timestamp: e.Timestamp}
}
