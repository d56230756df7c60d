package rebase

import (
	"errors"
	"math/big"
	"testing"
)

func TestEffectiveBalanceRoundsDown(t *testing.T) {
	acc := &Account{Principal: big.NewInt(3), Rate: big.NewInt(1), LastAccrual: 10}
	// 3 * (1e18 + 1*5) / 1e18 truncates to 3.
	if got := EffectiveBalance(acc, 15); got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected floor to 3, got %s", got)
	}
	if got := PendingInterest(acc, 15); got.Sign() != 0 {
		t.Fatalf("expected no pending dust, got %s", got)
	}
}

func TestMultiplierIgnoresBackwardClock(t *testing.T) {
	acc := &Account{Principal: tokens(1), Rate: DefaultGlobalRate, LastAccrual: 100}
	if got := ComputeMultiplier(acc, 50); got.Cmp(Precision) != 0 {
		t.Fatalf("expected unit multiplier, got %s", got)
	}
	if got := ComputeMultiplier(acc, 110); got.Cmp(new(big.Int).Add(Precision, big.NewInt(500_000_000_000))) != 0 {
		t.Fatalf("unexpected multiplier %s", got)
	}
}

func TestRealizeAdvancesTimestamp(t *testing.T) {
	acc := &Account{Principal: tokens(1_000_000), Rate: DefaultGlobalRate, LastAccrual: 1000}
	delta := Realize(acc, 2000)
	if delta.Cmp(tokens(50)) != 0 {
		t.Fatalf("expected 50 tokens realized, got %s", delta)
	}
	if acc.LastAccrual != 2000 || acc.Principal.Cmp(tokens(1_000_050)) != 0 {
		t.Fatalf("unexpected account after realize: %+v", acc)
	}
	if again := Realize(acc, 2000); again.Sign() != 0 {
		t.Fatalf("second realize returned %s", again)
	}

	idle := &Account{}
	if Realize(idle, 5).Sign() != 0 || idle.LastAccrual != 0 {
		t.Fatalf("empty record should be left untouched: %+v", idle)
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" max ")
	if err != nil || !IsMax(v) {
		t.Fatalf("expected sentinel, got %v %v", v, err)
	}
	if v, err := ParseAmount("1000"); err != nil || v.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected parse result %v %v", v, err)
	}
	tooBig := new(big.Int).Add(MaxAmount, big.NewInt(1)).String()
	for _, raw := range []string{"", "abc", "-1", tooBig} {
		if _, err := ParseAmount(raw); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q: expected invalid amount, got %v", raw, err)
		}
	}
}

func TestCheckedAddOverflow(t *testing.T) {
	if _, err := checkedAdd(MaxAmount, big.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}
