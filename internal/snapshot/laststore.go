package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// Mirror is an object store holding a copy of the last good snapshots.
type Mirror interface {
	domain.BlobWriter
	domain.BlobReader
}

// lastGoodFile is the layout of snapshot-<sport>.json.
type lastGoodFile struct {
	UpdatedAt int64                  `json:"updatedAt"`
	Snapshot  *domain.MarketSnapshot `json:"snapshot"`
}

// LastGoodStore persists the last good snapshot per sport as a single JSON
// file, optionally mirrored to object storage. Writes overwrite the whole
// file; an unreadable file is a miss.
type LastGoodStore struct {
	dir    string
	mirror Mirror
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewLastGoodStore creates a store under dir. mirror may be nil.
func NewLastGoodStore(dir string, mirror Mirror, prefix string, logger *slog.Logger) *LastGoodStore {
	return &LastGoodStore{
		dir:    dir,
		mirror: mirror,
		prefix: prefix,
		logger: logger.With(slog.String("component", "last_good")),
		now:    time.Now,
	}
}

// Save writes snap as the last good snapshot of its sport. A mirror failure
// is logged and does not fail the save.
func (s *LastGoodStore) Save(ctx context.Context, snap *domain.MarketSnapshot) error {
	raw, err := json.Marshal(lastGoodFile{UpdatedAt: s.now().UnixMilli(), Snapshot: snap})
	if err != nil {
		return fmt.Errorf("snapshot: encode last good: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: create cache dir: %w", err)
	}
	if err := os.WriteFile(s.path(snap.Sport), raw, 0o644); err != nil {
		return fmt.Errorf("snapshot: write last good: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, s.key(snap.Sport), bytes.NewReader(raw), "application/json"); err != nil {
			s.logger.WarnContext(ctx, "last good mirror write failed",
				slog.String("sport", snap.Sport.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Load returns the last good snapshot of sport and when it was saved. The
// mirror is consulted when the local file is missing or unreadable. It
// returns domain.ErrNotFound when neither holds a usable copy.
func (s *LastGoodStore) Load(ctx context.Context, sport domain.Sport) (*domain.MarketSnapshot, time.Time, error) {
	if raw, err := os.ReadFile(s.path(sport)); err == nil {
		if f, ok := decodeLastGood(raw); ok {
			return f.Snapshot, time.UnixMilli(f.UpdatedAt), nil
		}
	}
	if s.mirror == nil {
		return nil, time.Time{}, domain.ErrNotFound
	}

	rc, err := s.mirror.Get(ctx, s.key(sport))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, time.Time{}, domain.ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("snapshot: read mirror: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("snapshot: read mirror: %w", err)
	}
	f, ok := decodeLastGood(raw)
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return f.Snapshot, time.UnixMilli(f.UpdatedAt), nil
}

func decodeLastGood(raw []byte) (lastGoodFile, bool) {
	var f lastGoodFile
	if err := json.Unmarshal(raw, &f); err != nil || f.Snapshot == nil {
		return lastGoodFile{}, false
	}
	return f, true
}

func (s *LastGoodStore) path(sport domain.Sport) string {
	return filepath.Join(s.dir, "snapshot-"+sport.String()+".json")
}

func (s *LastGoodStore) key(sport domain.Sport) string {
	return path.Join(s.prefix, "snapshot-"+sport.String()+".json")
}
