package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://u:p@db:5432/sf?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "sf", User: "u", Password: "p"}))
	require.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestSnapshotHistoryStore(t *testing.T) {
	dsn := os.Getenv("SPORTFUN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPORTFUN_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	client, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.RunMigrations(ctx))
	require.NoError(t, client.RunMigrations(ctx), "migrations are idempotent")

	store := NewSnapshotHistoryStore(client.Pool())
	sport := domain.Sport("test-" + uuid.NewString()[:8])
	asOf := time.Now().UTC().Truncate(time.Second)
	rec := domain.SnapshotRecord{
		BuildID:            uuid.NewString(),
		Sport:              sport,
		State:              domain.BuildStateSucceeded,
		AsOf:               asOf,
		WindowHours:        24,
		TotalTokens:        3,
		ActiveTokens:       1,
		Trades:             2,
		VolumeSharesRaw:    "2000000000000000000",
		MedianPriceUsdcRaw: "5000000",
		UniqueTraders:      2,
	}
	require.NoError(t, store.Insert(ctx, rec))
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.ListRecent(ctx, sport, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, rec.VolumeSharesRaw, got[0].VolumeSharesRaw)
	require.Equal(t, "", got[0].AvgPriceUsdcRaw)
	require.Equal(t, "5000000", got[0].MedianPriceUsdcRaw)
	require.True(t, asOf.Equal(got[0].AsOf))
}
