package types

// Event represents a typed event emitted during ledger state transitions.
// Attribute values are strings so amounts keep full precision on the wire.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  uint64            `json:"timestamp,omitempty"`
}

// Attr returns the named attribute or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// partyKeys are the attributes that carry an account address.
var partyKeys = []string{"account", "from", "to", "owner", "spender", "caller"}

// Parties returns the distinct account addresses named by the event.
func (e *Event) Parties() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, 2)
	for _, key := range partyKeys {
		value := e.Attributes[key]
		if value == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if existing == value {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, value)
		}
	}
	return out
}

// Mentions reports whether account is one of the event's parties.
func (e *Event) Mentions(account string) bool {
	for _, party := range e.Parties() {
		if party == account {
			return true
		}
	}
	return false
}
