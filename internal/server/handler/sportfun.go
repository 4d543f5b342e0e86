package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/server/middleware"
	"github.com/alanyoungcy/sportfun/internal/snapshot"
)

// SnapshotService defines the methods that the sportfun handler requires from
// the snapshot layer. It is declared locally so the handler can be tested
// without a chain behind it.
type SnapshotService interface {
	GetMarketSnapshot(ctx context.Context, opts snapshot.Options) (*domain.MarketSnapshot, error)
}

// HistoryReader lists persisted build summaries.
type HistoryReader interface {
	ListRecent(ctx context.Context, sport domain.Sport, limit int) ([]domain.SnapshotRecord, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// SportfunHandler serves the market snapshot endpoints.
type SportfunHandler struct {
	snapshots SnapshotService
	history   HistoryReader
	logger    *slog.Logger
}

// NewSportfunHandler creates a SportfunHandler. history may be nil when
// snapshot history is not persisted.
func NewSportfunHandler(snapshots SnapshotService, history HistoryReader, logger *slog.Logger) *SportfunHandler {
	return &SportfunHandler{
		snapshots: snapshots,
		history:   history,
		logger:    logHandler(logger, "sportfun"),
	}
}

// GetSnapshot returns the market snapshot for one sport.
// GET /api/sportfun/{sport}/snapshot?windowHours=24&trendDays=7&maxTokens=0&metadataLimit=250
func (h *SportfunHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sport, err := domain.ParseSport(pathParam(r, "sport"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	opts := snapshot.Options{Sport: sport}
	for name, dst := range map[string]*int{
		"windowHours":   &opts.WindowHours,
		"trendDays":     &opts.TrendDays,
		"maxTokens":     &opts.MaxTokens,
		"metadataLimit": &opts.MetadataLimit,
	} {
		n, err := queryInt(r, name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		*dst = n
	}

	snap, ok := h.load(w, r, opts)
	if !ok {
		return
	}
	w.Header().Set(middleware.SnapshotStateHeader, string(snap.State))
	writeJSON(w, http.StatusOK, snap)
}

// GetToken returns one token row from the default snapshot of a sport.
// GET /api/sportfun/{sport}/tokens/{id}
func (h *SportfunHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	sport, err := domain.ParseSport(pathParam(r, "sport"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	id, ok := new(big.Int).SetString(pathParam(r, "id"), 10)
	if !ok || id.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "token id must be a positive decimal integer")
		return
	}

	snap, ok := h.load(w, r, snapshot.Options{Sport: sport})
	if !ok {
		return
	}
	tok, found := snap.Token(id.String())
	if !found {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	w.Header().Set(middleware.SnapshotStateHeader, string(snap.State))
	writeJSON(w, http.StatusOK, tok)
}

type historyEntry struct {
	BuildID            string            `json:"buildId"`
	State              domain.BuildState `json:"state"`
	AsOf               int64             `json:"asOf"`
	WindowHours        int               `json:"windowHours"`
	TotalTokens        int               `json:"totalTokens"`
	ActiveTokens       int               `json:"activeTokens"`
	Trades             int               `json:"trades"`
	VolumeSharesRaw    string            `json:"volumeSharesRaw"`
	AvgPriceUsdcRaw    string            `json:"avgPriceUsdcRaw,omitempty"`
	MedianPriceUsdcRaw string            `json:"medianPriceUsdcRaw,omitempty"`
	UniqueTraders      uint64            `json:"uniqueTraders"`
}

// ListHistory returns recent build summaries, newest first.
// GET /api/sportfun/{sport}/history?limit=50
func (h *SportfunHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot history is not enabled")
		return
	}
	sport, err := domain.ParseSport(pathParam(r, "sport"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	recs, err := h.history.ListRecent(r.Context(), sport, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list history failed",
			slog.String("sport", sport.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	out := make([]historyEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyEntry{
			BuildID:            rec.BuildID,
			State:              rec.State,
			AsOf:               rec.AsOf.UnixMilli(),
			WindowHours:        rec.WindowHours,
			TotalTokens:        rec.TotalTokens,
			ActiveTokens:       rec.ActiveTokens,
			Trades:             rec.Trades,
			VolumeSharesRaw:    rec.VolumeSharesRaw,
			AvgPriceUsdcRaw:    rec.AvgPriceUsdcRaw,
			MedianPriceUsdcRaw: rec.MedianPriceUsdcRaw,
			UniqueTraders:      rec.UniqueTraders,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sport":   sport,
		"history": out,
		"limit":   limit,
	})
}

func (h *SportfunHandler) load(w http.ResponseWriter, r *http.Request, opts snapshot.Options) (*domain.MarketSnapshot, bool) {
	start := time.Now()
	snap, err := h.snapshots.GetMarketSnapshot(r.Context(), opts)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSport) {
			writeError(w, http.StatusNotFound, err.Error())
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "handler: snapshot failed",
			slog.String("sport", opts.Sport.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build snapshot")
		return nil, false
	}
	h.logger.DebugContext(r.Context(), "handler: snapshot served",
		slog.String("sport", opts.Sport.String()),
		slog.String("state", string(snap.State)),
		slog.Int("tokens", len(snap.Tokens)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return snap, true
}
