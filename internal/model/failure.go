package model

// FailureStage tells where a record was dropped.
type FailureStage string

const (
	// FailureDecode marks a log that could not be turned into an event.
	FailureDecode FailureStage = "decode"
	// FailureApply marks an event the ledger rejected as an integrity error.
	FailureApply FailureStage = "apply"
)

// Failure is one dropped log or event, kept for inspection and replay.
type Failure struct {
	Stage       FailureStage `json:"stage"`
	ChainID     uint64       `json:"chain_id,omitempty"`
	BlockNumber uint64       `json:"block_number"`
	TxHash      string       `json:"tx_hash"`
	TxIndex     uint64       `json:"tx_index"`
	LogIndex    uint64       `json:"log_index"`
	Address     string       `json:"address"`
	Topic0      string       `json:"topic0,omitempty"`
	EventType   string       `json:"event_type,omitempty"`
	Error       string       `json:"error"`
}
