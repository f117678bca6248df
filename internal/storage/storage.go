// Package storage archives raw logs and failed records as JSON lines.
package storage

import "dataunion/internal/model"

// Storage defines a sink for raw log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// ErrorSink receives logs that failed to decode or were rejected by the ledger.
type ErrorSink interface {
	PutErrors(records []model.Failure) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) PutLogBatch([]model.LogRecord) error { return nil }
func (Nop) PutErrors([]model.Failure) error     { return nil }
