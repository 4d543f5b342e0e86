package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/cache"
	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/snapshot"
)

type stubGetter struct {
	states map[domain.Sport]domain.BuildState
}

func (s stubGetter) GetMarketSnapshot(_ context.Context, opts snapshot.Options) (*domain.MarketSnapshot, error) {
	state, ok := s.states[opts.Sport]
	if !ok {
		return nil, domain.ErrUnknownSport
	}
	return &domain.MarketSnapshot{
		Sport:   opts.Sport,
		AsOf:    1700000000000,
		State:   state,
		Summary: domain.MarketSummary{Trades24h: 3},
	}, nil
}

func TestRefreshAllPublishesUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := cache.NewLocalBus()
	updates, err := bus.Subscribe(ctx, snapshot.UpdatesChannel)
	require.NoError(t, err)

	getter := stubGetter{states: map[domain.Sport]domain.BuildState{
		domain.SportNFL:    domain.BuildStateSucceeded,
		domain.SportSoccer: domain.BuildStateFailedEmpty,
	}}
	r := newRefresher(getter, bus, []domain.Sport{domain.SportNFL, domain.SportSoccer},
		0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	failed := r.refreshAll(ctx, getter.GetMarketSnapshot)
	require.Equal(t, 1, failed)

	var first snapshot.Update
	require.NoError(t, json.Unmarshal(<-updates, &first))
	require.Equal(t, domain.SportNFL, first.Sport)
	require.Equal(t, domain.BuildStateSucceeded, first.State)
	require.Equal(t, 3, first.Summary.Trades24h)

	var second snapshot.Update
	require.NoError(t, json.Unmarshal(<-updates, &second))
	require.Equal(t, domain.BuildStateFailedEmpty, second.State)
}

func TestRefreshAllCountsErrors(t *testing.T) {
	r := newRefresher(stubGetter{}, nil, []domain.Sport{domain.SportNFL},
		0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	failed := r.refreshAll(context.Background(), func(context.Context, snapshot.Options) (*domain.MarketSnapshot, error) {
		return nil, errors.New("boom")
	})
	require.Equal(t, 1, failed)
}
