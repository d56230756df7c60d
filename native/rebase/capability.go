package rebase

import (
	"strings"

	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

// Capability names a permission the engine checks before gated operations.
type Capability string

const (
	// CapabilityOwner may grant and revoke capabilities and pause the ledger.
	CapabilityOwner Capability = "owner"
	// CapabilityRateAdmin may move the global rate.
	CapabilityRateAdmin Capability = "rate_admin"
	// CapabilityMintBurn may mint and burn principal (vaults, bridges).
	CapabilityMintBurn Capability = "mint_burn"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{CapabilityOwner, CapabilityRateAdmin, CapabilityMintBurn}

// ParseCapability normalises and validates a capability name.
func ParseCapability(raw string) (Capability, error) {
	normalized := Capability(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Capabilities {
		if normalized == known {
			return known, nil
		}
	}
	return "", ErrUnknownCapability
}

func (c Capability) role() string {
	return "rebase/" + string(c)
}

// Authorizer decides whether caller holds capability. Hosts that manage
// permissions elsewhere inject their own; by default the engine reads the
// capability sets persisted in ledger state.
type Authorizer interface {
	Can(caller crypto.Address, capability Capability) bool
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(caller crypto.Address, capability Capability) bool

// Can implements Authorizer.
func (f AuthorizerFunc) Can(caller crypto.Address, capability Capability) bool {
	if f == nil {
		return false
	}
	return f(caller, capability)
}

type stateAuthorizer struct {
	state engineState
}

func (a stateAuthorizer) Can(caller crypto.Address, capability Capability) bool {
	if a.state == nil || len(caller.Bytes()) == 0 {
		return false
	}
	return a.state.HasRole(capability.role(), caller.Bytes())
}
