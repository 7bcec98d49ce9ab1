package types

// Event represents a typed record emitted by the ledger during state
// transitions. Attributes carry string-rendered values so downstream
// monitors and liquidation bots can consume them without extra decoding.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
