package rebase

import "math/big"

// elapsed returns the seconds since the last realization. Records that were
// never realized, and clocks that moved backwards, yield zero.
func elapsed(acc *Account, now uint64) uint64 {
	if acc == nil || acc.LastAccrual == 0 || now <= acc.LastAccrual {
		return 0
	}
	return now - acc.LastAccrual
}

// ComputeMultiplier returns Precision + rate * elapsed. Interest is simple,
// not compounded, between two realizations.
func ComputeMultiplier(acc *Account, now uint64) *big.Int {
	multiplier := new(big.Int).Set(Precision)
	if acc == nil || acc.Rate == nil || acc.Rate.Sign() == 0 {
		return multiplier
	}
	dt := elapsed(acc, now)
	if dt == 0 {
		return multiplier
	}
	growth := new(big.Int).Mul(acc.Rate, new(big.Int).SetUint64(dt))
	return multiplier.Add(multiplier, growth)
}

// EffectiveBalance returns floor(principal * multiplier / Precision). The
// floor means rounding dust always stays with the protocol.
func EffectiveBalance(acc *Account, now uint64) *big.Int {
	if acc == nil || acc.Principal == nil || acc.Principal.Sign() == 0 {
		return big.NewInt(0)
	}
	balance := new(big.Int).Mul(acc.Principal, ComputeMultiplier(acc, now))
	return balance.Quo(balance, Precision)
}

// PendingInterest is the amount a realization at now would fold into
// principal.
func PendingInterest(acc *Account, now uint64) *big.Int {
	if acc == nil || acc.Principal == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(EffectiveBalance(acc, now), acc.Principal)
}
