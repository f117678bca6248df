package model

import (
	"fmt"
	"strconv"
	"strings"
)

// EventKey orders events by their position on the primary ledger.
type EventKey struct {
	BlockNumber uint64 `json:"block_number"`
	TxIndex     uint64 `json:"tx_index"`
	LogIndex    uint64 `json:"log_index"`
}

// Compare returns -1, 0 or 1 depending on whether k sorts before, equal to or after other.
func (k EventKey) Compare(other EventKey) int {
	switch {
	case k.BlockNumber != other.BlockNumber:
		return cmpUint(k.BlockNumber, other.BlockNumber)
	case k.TxIndex != other.TxIndex:
		return cmpUint(k.TxIndex, other.TxIndex)
	default:
		return cmpUint(k.LogIndex, other.LogIndex)
	}
}

// Less reports whether k sorts strictly before other.
func (k EventKey) Less(other EventKey) bool {
	return k.Compare(other) < 0
}

// IsZero reports whether k is the zero key.
func (k EventKey) IsZero() bool {
	return k == EventKey{}
}

func (k EventKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.BlockNumber, k.TxIndex, k.LogIndex)
}

// ParseEventKey parses the block:tx:log form produced by String.
func ParseEventKey(input string) (EventKey, error) {
	parts := strings.Split(strings.TrimSpace(input), ":")
	if len(parts) != 3 {
		return EventKey{}, fmt.Errorf("invalid event key: %q", input)
	}
	var vals [3]uint64
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return EventKey{}, fmt.Errorf("invalid event key %q: %w", input, err)
		}
		vals[i] = v
	}
	return EventKey{BlockNumber: vals[0], TxIndex: vals[1], LogIndex: vals[2]}, nil
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
