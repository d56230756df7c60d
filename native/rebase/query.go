package rebase

import (
	"math/big"

	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

// BalanceOf returns the effective balance of addr at the current time. It
// never writes.
func (e *Engine) BalanceOf(addr crypto.Address) (*big.Int, error) {
	view, err := e.Account(addr)
	if err != nil {
		return nil, err
	}
	return view.Balance, nil
}

// PrincipalOf returns the stored principal, excluding interest accrued since
// the last realization.
func (e *Engine) PrincipalOf(addr crypto.Address) (*big.Int, error) {
	view, err := e.Account(addr)
	if err != nil {
		return nil, err
	}
	return view.Principal, nil
}

// RateOf returns the rate locked on addr. Zero for holders that never held
// principal.
func (e *Engine) RateOf(addr crypto.Address) (*big.Int, error) {
	view, err := e.Account(addr)
	if err != nil {
		return nil, err
	}
	return view.Rate, nil
}

// Account returns the read model for addr evaluated at the current time.
func (e *Engine) Account(addr crypto.Address) (*AccountView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	target, err := holder(addr)
	if err != nil {
		return nil, err
	}
	acc, err := e.loadAccount(target)
	if err != nil {
		return nil, err
	}
	now := e.now()
	return &AccountView{
		Address:     addr,
		Balance:     EffectiveBalance(acc, now),
		Principal:   new(big.Int).Set(acc.Principal),
		Rate:        new(big.Int).Set(acc.Rate),
		LastAccrual: acc.LastAccrual,
		Pending:     PendingInterest(acc, now),
	}, nil
}

// Protocol returns a copy of the protocol singleton.
func (e *Engine) Protocol() (*ProtocolState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	protocol, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	return protocol.Clone(), nil
}

// GlobalRate returns the rate new holders are stamped with.
func (e *Engine) GlobalRate() (*big.Int, error) {
	protocol, err := e.Protocol()
	if err != nil {
		return nil, err
	}
	return protocol.GlobalRate, nil
}

// PrincipalSupply returns the sum of stored principal. Interest that has not
// been realized is not counted.
func (e *Engine) PrincipalSupply() (*big.Int, error) {
	protocol, err := e.Protocol()
	if err != nil {
		return nil, err
	}
	return protocol.PrincipalSupply, nil
}
