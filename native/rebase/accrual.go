package rebase

import "math/big"

// Realize folds the interest owed up to now into the account's principal and
// advances LastAccrual. It returns the realized delta.
//
// A record with neither principal nor rate is left untouched. A record with a
// rate but no principal only has its timestamp advanced so a later funding
// does not inherit a long idle window.
//
// Calling Realize twice with the same now returns zero the second time.
func Realize(acc *Account, now uint64) *big.Int {
	if acc == nil {
		return big.NewInt(0)
	}
	acc.ensureDefaults()
	if acc.Principal.Sign() == 0 && acc.Rate.Sign() == 0 {
		return big.NewInt(0)
	}
	previous := new(big.Int).Set(acc.Principal)
	current := EffectiveBalance(acc, now)
	delta := new(big.Int).Sub(current, previous)
	if delta.Sign() < 0 {
		// Unreachable while rates are non-negative.
		delta.SetInt64(0)
	}
	if now > acc.LastAccrual || acc.LastAccrual == 0 {
		acc.LastAccrual = now
	}
	acc.Principal = previous.Add(previous, delta)
	return delta
}
