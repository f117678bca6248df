package postgres

import (
	"io/fs"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(embedMigrations, migrationsDir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)

	var all strings.Builder
	for _, entry := range entries {
		data, err := fs.ReadFile(embedMigrations, migrationsDir+"/"+entry.Name())
		require.NoError(t, err, entry.Name())
		body := string(data)
		require.Contains(t, body, "-- +goose Up", entry.Name())
		require.Contains(t, body, "-- +goose Down", entry.Name())
		all.WriteString(body)
	}
	for _, want := range []string{"stats_buckets", "indexer_state", "revenue_events", "applied_events"} {
		require.Contains(t, all.String(), want)
	}
}

func TestParseWei(t *testing.T) {
	big1e30, _ := new(big.Int).SetString("1000000000000000000000000000000", 10)
	got, err := parseWei(big1e30.String())
	require.NoError(t, err)
	require.Zero(t, got.Cmp(big1e30), "parsed %s", got)

	_, err = parseWei("1.5")
	require.Error(t, err, "fractional wei")
	require.Equal(t, "0", weiString(nil))
}

func TestClampInt64(t *testing.T) {
	require.Equal(t, int64(math.MaxInt64), clampInt64(math.MaxUint64))
	require.Equal(t, int64(42), clampInt64(42))
}

func TestMigrateRejectsBadInput(t *testing.T) {
	require.Error(t, Migrate("", MigrateUp, nil))
}
