package events

import (
	"math/big"
	"strconv"

	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatAddress(raw [20]byte) string {
	return crypto.AddressFromArray(raw).String()
}

func zeroBytes(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func formatTime(ts uint64) string {
	return strconv.FormatUint(ts, 10)
}
