package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportfun/internal/domain"
	"github.com/alanyoungcy/sportfun/internal/server/handler"
	"github.com/alanyoungcy/sportfun/internal/snapshot"
)

type stubSnapshots struct{}

func (stubSnapshots) GetMarketSnapshot(_ context.Context, opts snapshot.Options) (*domain.MarketSnapshot, error) {
	return &domain.MarketSnapshot{Sport: opts.Sport, State: domain.BuildStateSucceeded}, nil
}

func newTestServer(apiKey string) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(Config{
		Port:        0,
		CORSOrigins: []string{"https://app.example.com"},
		APIKey:      apiKey,
	}, Handlers{
		Health:   handler.NewHealthHandler([]domain.Sport{domain.SportNFL}, logger),
		Sportfun: handler.NewSportfunHandler(stubSnapshots{}, nil, logger),
	}, nil, logger)
}

func TestRoutes(t *testing.T) {
	h := newTestServer("").Handler()

	for path, want := range map[string]int{
		"/api/health":                 http.StatusOK,
		"/api/sportfun/nfl/snapshot":  http.StatusOK,
		"/api/sportfun/nfl/tokens/1":  http.StatusNotFound,
		"/api/sportfun/nfl/history":   http.StatusServiceUnavailable,
		"/api/sportfun/nfl/unknown":   http.StatusNotFound,
		"/api/sportfun/golf/snapshot": http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, rec.Code, path)
	}
}

func TestAuthAndCORS(t *testing.T) {
	h := newTestServer("secret").Handler()

	// Health stays public so probes work with a key configured.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sportfun/nfl/snapshot", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sportfun/nfl/snapshot", nil)
	req.Header.Set("X-Sportfun-Key", "secret")
	req.Header.Set("Origin", "https://app.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Snapshot-State", rec.Header().Get("Access-Control-Expose-Headers"))
	require.Equal(t, "succeeded", rec.Header().Get("X-Snapshot-State"))

	req = httptest.NewRequest(http.MethodOptions, "/api/sportfun/nfl/snapshot", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
