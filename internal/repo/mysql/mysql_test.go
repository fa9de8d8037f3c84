package mysql

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/repotest"
)

// Needs a disposable database: every subtest empties both tables.
func TestMySQLStore_Contract(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set; skipping MySQL integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := New(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.EnsureSchema(ctx))

	repotest.Run(t, func(t *testing.T) repo.Store {
		_, err := store.db.Exec(`DELETE FROM checks`)
		require.NoError(t, err)
		_, err = store.db.Exec(`DELETE FROM sites`)
		require.NoError(t, err)
		return store
	})
}

func TestNew_RejectsBadDSN(t *testing.T) {
	_, err := New(context.Background(), "not a dsn", zap.NewNop())
	require.Error(t, err)
}

func TestBoundTimesAreTruncated(t *testing.T) {
	since := time.Date(2025, 8, 18, 11, 59, 0, 700_000_000, time.FixedZone("CEST", 2*3600))

	nt := nullTime(&since)
	require.True(t, nt.Valid)
	assert.Equal(t, time.Date(2025, 8, 18, 9, 59, 0, 0, time.UTC), nt.Time)
	assert.Equal(t, time.UTC, nt.Time.Location())

	assert.False(t, nullTime(nil).Valid)
	assert.Equal(t, time.Date(2025, 8, 18, 9, 59, 0, 0, time.UTC), toSecond(since))
}
