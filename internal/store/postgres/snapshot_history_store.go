package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// SnapshotHistoryStore implements domain.SnapshotHistoryStore.
type SnapshotHistoryStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotHistoryStore creates a store over pool.
func NewSnapshotHistoryStore(pool *pgxpool.Pool) *SnapshotHistoryStore {
	return &SnapshotHistoryStore{pool: pool}
}

const historySelectCols = `id, build_id::text, sport, state, as_of, window_hours,
	total_tokens, active_tokens, trades, volume_shares_raw::text,
	COALESCE(avg_price_usdc_raw::text, ''), COALESCE(median_price_usdc_raw::text, ''),
	unique_traders, created_at`

// Insert records one build. Re-inserting a build id is a no-op.
func (s *SnapshotHistoryStore) Insert(ctx context.Context, rec domain.SnapshotRecord) error {
	const query = `
		INSERT INTO snapshot_history (
			build_id, sport, state, as_of, window_hours,
			total_tokens, active_tokens, trades, volume_shares_raw,
			avg_price_usdc_raw, median_price_usdc_raw, unique_traders
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9::numeric,
			NULLIF($10, '')::numeric, NULLIF($11, '')::numeric, $12
		)
		ON CONFLICT (build_id) DO NOTHING`

	volume := rec.VolumeSharesRaw
	if volume == "" {
		volume = "0"
	}
	_, err := s.pool.Exec(ctx, query,
		rec.BuildID, string(rec.Sport), string(rec.State), rec.AsOf, rec.WindowHours,
		rec.TotalTokens, rec.ActiveTokens, rec.Trades, volume,
		rec.AvgPriceUsdcRaw, rec.MedianPriceUsdcRaw, int64(rec.UniqueTraders),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot history: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records for sport, newest first.
func (s *SnapshotHistoryStore) ListRecent(ctx context.Context, sport domain.Sport, limit int) ([]domain.SnapshotRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + historySelectCols + `
		FROM snapshot_history
		WHERE sport = $1
		ORDER BY as_of DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, string(sport), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshot history: %w", err)
	}
	defer rows.Close()

	recs, err := scanHistoryRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan snapshot history: %w", err)
	}
	return recs, nil
}

func scanHistoryRows(rows pgx.Rows) ([]domain.SnapshotRecord, error) {
	var out []domain.SnapshotRecord
	for rows.Next() {
		var (
			r             domain.SnapshotRecord
			sport, state  string
			uniqueTraders int64
		)
		if err := rows.Scan(
			&r.ID, &r.BuildID, &sport, &state, &r.AsOf, &r.WindowHours,
			&r.TotalTokens, &r.ActiveTokens, &r.Trades, &r.VolumeSharesRaw,
			&r.AvgPriceUsdcRaw, &r.MedianPriceUsdcRaw, &uniqueTraders, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		r.Sport = domain.Sport(sport)
		r.State = domain.BuildState(state)
		r.UniqueTraders = uint64(uniqueTraders)
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ domain.SnapshotHistoryStore = (*SnapshotHistoryStore)(nil)
