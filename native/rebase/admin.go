package rebase

import (
	"bytes"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

// Grant adds account to the holders of capability. Only owners may grant.
func (e *Engine) Grant(caller, account crypto.Address, capability Capability) error {
	return e.setCapability(caller, account, capability, true)
}

// Revoke removes account from the holders of capability. The last owner
// cannot be revoked.
func (e *Engine) Revoke(caller, account crypto.Address, capability Capability) error {
	return e.setCapability(caller, account, capability, false)
}

func (e *Engine) setCapability(caller, account crypto.Address, capability Capability, granted bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if _, err := ParseCapability(string(capability)); err != nil {
		return err
	}
	if err := e.require(caller, CapabilityOwner); err != nil {
		return err
	}
	target, err := holder(account)
	if err != nil {
		return err
	}
	if _, err := e.loadProtocol(); err != nil {
		return err
	}
	if granted {
		if err := e.state.SetRole(capability.role(), account.Bytes()); err != nil {
			return err
		}
	} else {
		if capability == CapabilityOwner {
			members, err := e.state.RoleMembers(capability.role())
			if err != nil {
				return err
			}
			remaining := 0
			for _, member := range members {
				if !bytes.Equal(member, account.Bytes()) {
					remaining++
				}
			}
			if remaining == 0 {
				return ErrLastOwner
			}
		}
		if err := e.state.RemoveRole(capability.role(), account.Bytes()); err != nil {
			return err
		}
	}
	e.emit(events.CapabilityChanged{
		Account:    target,
		Capability: string(capability),
		Granted:    granted,
		Caller:     caller.Array(),
		Timestamp:  e.now(),
	})
	return nil
}

// HasCapability reports whether account currently holds capability.
func (e *Engine) HasCapability(account crypto.Address, capability Capability) bool {
	if e.ready() != nil {
		return false
	}
	return e.can(account, capability)
}

// SetPaused flips the ledger pause flag. While paused, mint, burn and both
// transfer forms fail with ErrPaused. Queries, approvals and realization keep
// working.
func (e *Engine) SetPaused(caller crypto.Address, paused bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.require(caller, CapabilityOwner); err != nil {
		return err
	}
	protocol, err := e.loadProtocol()
	if err != nil {
		return err
	}
	if protocol.Paused == paused {
		return nil
	}
	protocol.Paused = paused
	if err := e.storeProtocol(protocol); err != nil {
		return err
	}
	e.emit(events.PauseChanged{
		Paused:    paused,
		Caller:    caller.Array(),
		Timestamp: e.now(),
	})
	return nil
}
