package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketStartBoundaries(t *testing.T) {
	const start = uint64(1700000000 - 1700000000%3600)

	require.Equal(t, start, GranularityHour.BucketStart(start+3599), "last second of hour")
	require.Equal(t, start+3600, GranularityHour.BucketStart(start+3600), "first second of next hour")
	require.Equal(t, uint64(86400*3), GranularityDay.BucketStart(86400*3+5))
}

func TestUnknownGranularityPanics(t *testing.T) {
	require.Panics(t, func() { Granularity("WEEK").Seconds() })
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("DAY")
	require.NoError(t, err)
	require.Equal(t, GranularityDay, g)

	_, err = ParseGranularity("MINUTE")
	require.Error(t, err)
}
