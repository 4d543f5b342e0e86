package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalBus_ExactAndPrefix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus()
	exact, err := bus.Subscribe(ctx, "snapshots")
	require.NoError(t, err)
	prefixed, err := bus.Subscribe(ctx, "snap*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "snapshots", []byte("a")))
	require.NoError(t, bus.Publish(ctx, "other", []byte("b")))

	require.Equal(t, []byte("a"), <-exact)
	require.Equal(t, []byte("a"), <-prefixed)
	require.Empty(t, exact)
	require.Empty(t, prefixed)
}

func TestLocalBus_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewLocalBus()
	ch, err := bus.Subscribe(ctx, "snapshots")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	require.NoError(t, bus.Publish(context.Background(), "snapshots", []byte("late")))
}
