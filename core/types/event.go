package types

// Event captures a state change with string attributes for RPC consumers.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
