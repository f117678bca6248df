package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitRange(t *testing.T) {
	cases := []struct {
		name      string
		from, to  uint64
		batchSize uint64
		want      []BlockRange
	}{
		{"even", 100, 105, 2, []BlockRange{{100, 101}, {102, 103}, {104, 105}}},
		{"remainder", 1, 5, 2, []BlockRange{{1, 2}, {3, 4}, {5, 5}}},
		{"single block", 5, 5, 10, []BlockRange{{5, 5}}},
		{"exact batch", 10, 19, 10, []BlockRange{{10, 19}}},
		{"near max", ^uint64(0) - 2, ^uint64(0), 2, []BlockRange{{^uint64(0) - 2, ^uint64(0) - 1}, {^uint64(0), ^uint64(0)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SplitRange(tc.from, tc.to, tc.batchSize)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			var total uint64
			for _, r := range got {
				total += r.Len()
			}
			require.Equal(t, tc.to-tc.from+1, total, "ranges must cover every block")
		})
	}
}

func TestSplitRangeInvalid(t *testing.T) {
	_, err := SplitRange(10, 9, 1)
	require.Error(t, err, "inverted range")
	_, err = SplitRange(1, 10, 0)
	require.Error(t, err, "zero batch size")
}

func TestSafeHead(t *testing.T) {
	head, ok := SafeHead(100, 12)
	require.True(t, ok)
	require.Equal(t, uint64(88), head)

	head, ok = SafeHead(100, 0)
	require.True(t, ok)
	require.Equal(t, uint64(100), head)

	_, ok = SafeHead(5, 12)
	require.False(t, ok, "no safe head below the confirmation depth")
}
