package rebase

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// Precision is the fixed-point scale shared by amounts and rates (1e18).
	Precision = mustBigInt("1000000000000000000")
	// MaxAmount is the largest representable amount (2^256-1). Passed as a
	// burn or transfer amount it means "the whole effective balance".
	MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	// DefaultGlobalRate is 5e-8 per second at 1e18 precision.
	DefaultGlobalRate = mustBigInt("50000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// ParseAmount parses a base-10 integer amount. The literal "max" spells the
// sentinel.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, "max") {
		return new(big.Int).Set(MaxAmount), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	if _, err := toUint256(v); err != nil {
		return nil, err
	}
	return v, nil
}

// IsMax reports whether amount is the full-exit sentinel.
func IsMax(amount *big.Int) bool {
	return amount != nil && amount.Cmp(MaxAmount) == 0
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return out, nil
}

// validateAmount checks that amount is a positive 256-bit value.
func validateAmount(amount *big.Int) error {
	u, err := toUint256(amount)
	if err != nil {
		return err
	}
	if u.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// checkedAdd adds b to a and fails if the result leaves the 256-bit range.
func checkedAdd(a, b *big.Int) (*big.Int, error) {
	x, err := toUint256(zeroIfNil(a))
	if err != nil {
		return nil, err
	}
	y, err := toUint256(zeroIfNil(b))
	if err != nil {
		return nil, err
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
