package snapshot

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

type memMirror struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memMirror) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memMirror) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memMirror) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func TestLastGoodStore_MirrorServesMissingDisk(t *testing.T) {
	mirror := &memMirror{objects: map[string][]byte{}}
	dir := t.TempDir()
	store := NewLastGoodStore(dir, mirror, "last-good", testLogger())
	store.now = func() time.Time { return testNow }

	snap := &domain.MarketSnapshot{Sport: domain.SportSoccer, AsOf: 42, Tokens: []domain.MarketToken{{TokenIDDec: "1"}}}
	require.NoError(t, store.Save(context.Background(), snap))
	require.Contains(t, mirror.objects, "last-good/snapshot-soccer.json")

	require.NoError(t, os.Remove(store.path(domain.SportSoccer)))
	got, updatedAt, err := store.Load(context.Background(), domain.SportSoccer)
	require.NoError(t, err)
	require.Equal(t, int64(42), got.AsOf)
	require.True(t, updatedAt.Equal(testNow))
}

func TestLastGoodStore_Miss(t *testing.T) {
	store := NewLastGoodStore(t.TempDir(), nil, "", testLogger())
	_, _, err := store.Load(context.Background(), domain.SportNFL)
	require.ErrorIs(t, err, domain.ErrNotFound)

	mirrored := NewLastGoodStore(t.TempDir(), &memMirror{objects: map[string][]byte{}}, "p", testLogger())
	_, _, err = mirrored.Load(context.Background(), domain.SportNFL)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
