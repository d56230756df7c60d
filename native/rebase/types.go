package rebase

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

// Account is the per-holder ledger record.
type Account struct {
	// Address is the holder the record belongs to.
	Address [20]byte
	// Principal excludes interest accrued since LastAccrual.
	Principal *big.Int
	// Rate is the per-second rate locked at activation, scaled by Precision.
	Rate *big.Int
	// LastAccrual is the unix time of the last realization. Zero means the
	// record has never been realized.
	LastAccrual uint64
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Address: a.Address, LastAccrual: a.LastAccrual}
	clone.Principal = cloneInt(a.Principal)
	clone.Rate = cloneInt(a.Rate)
	return clone
}

func (a *Account) ensureDefaults() {
	if a.Principal == nil {
		a.Principal = big.NewInt(0)
	}
	if a.Rate == nil {
		a.Rate = big.NewInt(0)
	}
}

// Active reports whether the account holds principal.
func (a *Account) Active() bool {
	return a != nil && a.Principal != nil && a.Principal.Sign() > 0
}

// RateDirection fixes the only direction the global rate may move in.
type RateDirection uint8

const (
	// DirectionDecrease allows updates that keep or lower the rate. Early
	// holders keep the highest rates.
	DirectionDecrease RateDirection = iota
	// DirectionIncrease allows updates that keep or raise the rate.
	DirectionIncrease
)

func (d RateDirection) String() string {
	switch d {
	case DirectionDecrease:
		return "decrease"
	case DirectionIncrease:
		return "increase"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// Allows reports whether moving from current to next respects the direction.
func (d RateDirection) Allows(current, next *big.Int) bool {
	cmp := zeroIfNil(next).Cmp(zeroIfNil(current))
	switch d {
	case DirectionDecrease:
		return cmp <= 0
	case DirectionIncrease:
		return cmp >= 0
	default:
		return false
	}
}

// ParseRateDirection accepts "decrease" or "increase".
func ParseRateDirection(raw string) (RateDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "decrease", "decrease-only", "down":
		return DirectionDecrease, nil
	case "increase", "increase-only", "up":
		return DirectionIncrease, nil
	default:
		return 0, fmt.Errorf("rebase: unknown rate direction %q", raw)
	}
}

// ProtocolState is the ledger singleton.
type ProtocolState struct {
	GlobalRate *big.Int
	Direction  RateDirection
	// PrincipalSupply is the sum of every stored principal. Interest that
	// has not been realized is not included.
	PrincipalSupply *big.Int
	Paused          bool
}

// Clone returns a deep copy of the protocol state.
func (p *ProtocolState) Clone() *ProtocolState {
	if p == nil {
		return nil
	}
	clone := *p
	clone.GlobalRate = cloneInt(p.GlobalRate)
	clone.PrincipalSupply = cloneInt(p.PrincipalSupply)
	return &clone
}

func (p *ProtocolState) ensureDefaults() {
	if p.GlobalRate == nil {
		p.GlobalRate = big.NewInt(0)
	}
	if p.PrincipalSupply == nil {
		p.PrincipalSupply = big.NewInt(0)
	}
}

// IsPaused implements common.PauseView for the ledger's own pause flag.
func (p *ProtocolState) IsPaused(module string) bool {
	return p != nil && module == moduleName && p.Paused
}

// Genesis describes the one-off initialisation of a ledger.
type Genesis struct {
	Owner      crypto.Address
	GlobalRate *big.Int
	Direction  RateDirection
	// MintBurners receive the mint_burn capability at genesis (vaults,
	// bridge adapters).
	MintBurners []crypto.Address
}

// AccountView is the read model returned by queries.
type AccountView struct {
	Address     crypto.Address
	Balance     *big.Int
	Principal   *big.Int
	Rate        *big.Int
	LastAccrual uint64
	// Pending is the interest that a realization at the query time would
	// fold into principal.
	Pending *big.Int
}

// Accrual records interest realized for one account during an operation.
type Accrual struct {
	Account  crypto.Address
	Interest *big.Int
}

// Receipt summarises a completed balance-affecting operation.
type Receipt struct {
	// Amount is the amount actually moved, with the sentinel resolved.
	Amount    *big.Int
	Accruals  []Accrual
	Timestamp uint64
}
