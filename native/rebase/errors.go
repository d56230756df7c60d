package rebase

import (
	"errors"
	"fmt"
	"math/big"

	nativecommon "github.com/MRAlirad/ccip-rebase-token/native/common"
)

var (
	ErrNilState               = errors.New("rebase: state not configured")
	ErrNotInitialised         = errors.New("rebase: ledger not initialised")
	ErrAlreadyInitialised     = errors.New("rebase: ledger already initialised")
	ErrUnauthorized           = errors.New("rebase: unauthorized")
	ErrRateDirectionViolation = errors.New("rebase: rate direction violation")
	ErrInsufficientPrincipal  = errors.New("rebase: insufficient principal")
	ErrInsufficientAllowance  = errors.New("rebase: insufficient allowance")
	ErrInvalidAmount          = errors.New("rebase: amount must be a positive 256-bit integer")
	ErrInvalidRate            = errors.New("rebase: rate must be a non-negative 256-bit integer")
	ErrInvalidAddress         = errors.New("rebase: address required")
	ErrUnknownCapability      = errors.New("rebase: unknown capability")
	ErrLastOwner              = errors.New("rebase: cannot revoke the last owner")
	ErrOverflow               = errors.New("rebase: amount overflows 256 bits")
	// ErrPaused is the shared module pause error so callers can match either.
	ErrPaused = nativecommon.ErrModulePaused
)

// RateDirectionError reports a rejected global rate update.
type RateDirectionError struct {
	Direction RateDirection
	Current   *big.Int
	Attempted *big.Int
}

func (e *RateDirectionError) Error() string {
	return fmt.Sprintf("rebase: rate direction violation: %s-only policy, current %s, attempted %s",
		e.Direction, zeroIfNil(e.Current), zeroIfNil(e.Attempted))
}

func (e *RateDirectionError) Unwrap() error { return ErrRateDirectionViolation }

func insufficientPrincipal(have, want *big.Int) error {
	return fmt.Errorf("%w: principal %s, requested %s", ErrInsufficientPrincipal, zeroIfNil(have), zeroIfNil(want))
}

func insufficientAllowance(have, want *big.Int) error {
	return fmt.Errorf("%w: allowance %s, requested %s", ErrInsufficientAllowance, zeroIfNil(have), zeroIfNil(want))
}
