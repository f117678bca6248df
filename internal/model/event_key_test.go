package model

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventKeyOrdering(t *testing.T) {
	keys := []EventKey{
		{BlockNumber: 10, TxIndex: 2, LogIndex: 0},
		{BlockNumber: 9, TxIndex: 5, LogIndex: 7},
		{BlockNumber: 10, TxIndex: 1, LogIndex: 9},
		{BlockNumber: 10, TxIndex: 1, LogIndex: 3},
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	got := make([]string, len(keys))
	for i, key := range keys {
		got[i] = key.String()
	}
	require.Equal(t, []string{"9:5:7", "10:1:3", "10:1:9", "10:2:0"}, got)
	require.Zero(t, keys[0].Compare(keys[0]))
}

func TestParseEventKey(t *testing.T) {
	key, err := ParseEventKey("36000000:7:12")
	require.NoError(t, err)
	require.Equal(t, EventKey{BlockNumber: 36000000, TxIndex: 7, LogIndex: 12}, key)

	for _, input := range []string{"", "1:2", "a:b:c", "1:2:3:4"} {
		_, err := ParseEventKey(input)
		require.Error(t, err, "input %q", input)
	}
}
