package model

// Checkpoint records ingestion progress. Every block up to LastProcessedBlock has been applied,
// and LastEventKey is the highest event key among them.
type Checkpoint struct {
	LastProcessedBlock uint64   `json:"last_processed_block"`
	LastEventKey       EventKey `json:"last_event_key"`
	UpdatedAt          string   `json:"updated_at"`
}
