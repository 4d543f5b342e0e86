package domain

import (
	"context"
	"time"
)

// SnapshotRecord is the persisted summary row of one snapshot build.
type SnapshotRecord struct {
	ID                 int64
	BuildID            string
	Sport              Sport
	State              BuildState
	AsOf               time.Time
	WindowHours        int
	TotalTokens        int
	ActiveTokens       int
	Trades             int
	VolumeSharesRaw    string
	AvgPriceUsdcRaw    string
	MedianPriceUsdcRaw string
	UniqueTraders      uint64
	CreatedAt          time.Time
}

// SnapshotHistoryStore persists build summaries.
type SnapshotHistoryStore interface {
	Insert(ctx context.Context, rec SnapshotRecord) error
	ListRecent(ctx context.Context, sport Sport, limit int) ([]SnapshotRecord, error)
}
