package rebase

var (
	accountPrefix   = []byte("rebase/account/")
	allowancePrefix = []byte("rebase/allowance/")
	protocolKey     = []byte("rebase/protocol")
)

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

func allowanceKey(owner, spender [20]byte) []byte {
	buf := make([]byte, len(allowancePrefix)+len(owner)+1+len(spender))
	copy(buf, allowancePrefix)
	copy(buf[len(allowancePrefix):], owner[:])
	buf[len(allowancePrefix)+len(owner)] = '/'
	copy(buf[len(allowancePrefix)+len(owner)+1:], spender[:])
	return buf
}

// AccountKey exposes the storage key of a holder record so hosts can derive
// lock keys that match what an operation touches.
func AccountKey(addr [20]byte) []byte { return accountKey(addr) }

// AllowanceKey exposes the storage key of an allowance record.
func AllowanceKey(owner, spender [20]byte) []byte { return allowanceKey(owner, spender) }

// ProtocolKey exposes the storage key of the protocol singleton.
func ProtocolKey() []byte { return append([]byte(nil), protocolKey...) }
