package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dataunion/internal/model"
)

// JSONLFile is an append-only file of JSON lines. It backs both the raw log
// archive and the failure sink.
type JSONLFile struct {
	mu   sync.Mutex
	path string
}

func NewJSONLFile(path string) *JSONLFile {
	return &JSONLFile{path: path}
}

func (f *JSONLFile) Path() string { return f.path }

func (f *JSONLFile) PutLogBatch(logs []model.LogRecord) error {
	return appendJSONL(f, logs)
}

func (f *JSONLFile) PutErrors(records []model.Failure) error {
	return appendJSONL(f, records)
}

func appendJSONL[T any](f *JSONLFile, rows []T) (err error) {
	if len(rows) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", f.path, cerr)
		}
	}()

	buf := bufio.NewWriter(file)
	enc := json.NewEncoder(buf)
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	return buf.Flush()
}
