package rebase

import (
	"fmt"
	"math/big"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

type allowanceRecord struct {
	Amount *big.Int
}

func (e *Engine) loadAllowance(owner, spender [20]byte) (*big.Int, error) {
	var record allowanceRecord
	ok, err := e.state.KVGet(allowanceKey(owner, spender), &record)
	if err != nil {
		return nil, fmt.Errorf("rebase: load allowance: %w", err)
	}
	if !ok || record.Amount == nil {
		return big.NewInt(0), nil
	}
	return record.Amount, nil
}

func (e *Engine) storeAllowance(owner, spender [20]byte, amount *big.Int) error {
	if err := e.state.KVPut(allowanceKey(owner, spender), allowanceRecord{Amount: zeroIfNil(amount)}); err != nil {
		return fmt.Errorf("rebase: store allowance: %w", err)
	}
	return nil
}

// Approve sets the amount spender may move out of owner's balance. It
// overwrites any previous allowance; zero revokes it. MaxAmount is an
// allowance that is never decremented.
func (e *Engine) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	ownerAddr, err := holder(owner)
	if err != nil {
		return err
	}
	spenderAddr, err := holder(spender)
	if err != nil {
		return err
	}
	if _, err := toUint256(amount); err != nil {
		return err
	}
	if _, err := e.loadProtocol(); err != nil {
		return err
	}
	if err := e.storeAllowance(ownerAddr, spenderAddr, amount); err != nil {
		return err
	}
	e.emit(events.Approval{
		Owner:     ownerAddr,
		Spender:   spenderAddr,
		Amount:    new(big.Int).Set(amount),
		Timestamp: e.now(),
	})
	return nil
}

// Allowance returns the remaining amount spender may move for owner.
func (e *Engine) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ownerAddr, err := holder(owner)
	if err != nil {
		return nil, err
	}
	spenderAddr, err := holder(spender)
	if err != nil {
		return nil, err
	}
	amount, err := e.loadAllowance(ownerAddr, spenderAddr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}
