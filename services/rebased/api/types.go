// Package api defines the JSON wire types of the rebased HTTP API. Amounts
// and rates are base-10 strings so they keep full 256-bit precision; the
// literal "max" spells the full-balance sentinel.
package api

// IdempotencyHeader makes a mutating request replay-safe.
const IdempotencyHeader = "Idempotency-Key"

type MintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type BurnRequest struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type TransferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type TransferFromRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type ApproveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// RealizeRequest names the account to realize. An empty account realizes
// the caller.
type RealizeRequest struct {
	Account string `json:"account,omitempty"`
}

type RateRequest struct {
	Rate string `json:"rate"`
}

type CapabilityRequest struct {
	Account    string `json:"account"`
	Capability string `json:"capability"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

type Accrual struct {
	Account  string `json:"account"`
	Interest string `json:"interest"`
}

// Receipt is returned by balance-affecting calls.
type Receipt struct {
	Amount    string    `json:"amount"`
	Accruals  []Accrual `json:"accruals,omitempty"`
	Timestamp uint64    `json:"timestamp"`
	Replayed  bool      `json:"replayed,omitempty"`
}

type Account struct {
	Address     string `json:"address"`
	Balance     string `json:"balance"`
	Principal   string `json:"principal"`
	Rate        string `json:"rate"`
	LastAccrual uint64 `json:"lastAccrual"`
	Pending     string `json:"pending"`
}

type Protocol struct {
	GlobalRate      string `json:"globalRate"`
	Direction       string `json:"direction"`
	PrincipalSupply string `json:"principalSupply"`
	Paused          bool   `json:"paused"`
}

// Value wraps a single numeric query result.
type Value struct {
	Value string `json:"value"`
}

type Allowance struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type Capabilities struct {
	Account      string   `json:"account"`
	Capabilities []string `json:"capabilities"`
}

type Event struct {
	Seq        uint64            `json:"seq,omitempty"`
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  uint64            `json:"timestamp"`
}

type Events struct {
	Events []Event `json:"events"`
	// Next is the cursor to pass as "after" to continue paging.
	Next uint64 `json:"next,omitempty"`
}

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
