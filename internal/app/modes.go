package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportfun/internal/server"
	"github.com/alanyoungcy/sportfun/internal/server/handler"
	"github.com/alanyoungcy/sportfun/internal/server/ws"
	"github.com/alanyoungcy/sportfun/internal/snapshot"
)

// ServerMode serves the HTTP API and websocket hub and keeps every configured
// sport warm with the background refresher. Full mode runs the same
// goroutines; config validation makes it require every optional backend.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode",
		slog.Any("sports", deps.Sports),
		slog.Bool("history", deps.History != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	r := newRefresher(deps.Snapshots, deps.Bus, deps.Sports, a.cfg.Snapshot.RefreshInterval.Duration, a.logger)
	g.Go(func() error {
		return r.run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	} else {
		a.logger.WarnContext(ctx, "server.enabled is false, running the refresher only")
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// RefreshMode rebuilds every configured sport once, bypassing the snapshot
// cache, publishes the results and exits.
func (a *App) RefreshMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting refresh mode", slog.Any("sports", deps.Sports))

	r := newRefresher(deps.Snapshots, deps.Bus, deps.Sports, 0, a.logger)
	failed := r.refreshAll(ctx, deps.Snapshots.Build)
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("refresh mode: %d of %d sports returned no live data", failed, len(deps.Sports))
	}
	return nil
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Channels:  []string{snapshot.UpdatesChannel},
		Sports:    deps.Sports,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.Sports, a.logger),
		Sportfun: handler.NewSportfunHandler(deps.Snapshots, deps.History, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
