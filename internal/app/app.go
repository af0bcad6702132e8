package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"chatrelay/internal/reaper"
	"chatrelay/pkg/config"
	"chatrelay/pkg/gateway"
	"chatrelay/pkg/identity"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/session"
	"chatrelay/pkg/store"
	"chatrelay/pkg/threads"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	threadAPI *threads.Client
	sync      *threads.Synchronizer
	gw        *gateway.Client
	registry  *session.Registry
	webhook   *identity.Handler

	reaperCancel context.CancelFunc
	srv          *http.Server
}

// New initializes resources that do not require a running context: the
// identity store, the upstream clients and the session registry. It does
// not start the reaper or the HTTP server; call Run to start those and
// block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	cfg := eff.Config
	threadAPI := threads.NewClient(
		cfg.Upstream.ThreadStore.BaseURL,
		cfg.Upstream.ThreadStore.Token,
		cfg.Upstream.ThreadStore.Timeout.Std(),
	)
	gw := gateway.New(
		cfg.Upstream.Gateway.BaseURL,
		cfg.Upstream.Gateway.Token,
		cfg.Upstream.Gateway.Timeout.Std(),
	)
	syn := threads.NewSynchronizer(threadAPI)
	registry := session.NewRegistry(session.Deps{Sync: syn, Store: threadAPI, Gateway: gw})
	webhook := identity.NewHandler(cfg.Webhook.SigningSecret, cfg.Webhook.Tolerance.Std())

	return &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		threadAPI: threadAPI,
		sync:      syn,
		gw:        gw,
		registry:  registry,
		webhook:   webhook,
	}, nil
}

// Run starts the reaper (if enabled) and the HTTP server, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancel, err := reaper.Start(ctx, a.eff.Config.Reaper, a.threadAPI)
	if err != nil {
		return err
	}
	a.reaperCancel = cancel

	a.logStartup()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (a *App) logStartup() {
	ver := a.version
	if a.commit != "" && a.commit != "none" {
		ver += " (" + a.commit + ")"
	}
	logger.Info("server_starting",
		"version", ver,
		"build_date", a.buildDate,
		"addr", a.eff.Addr,
		"db", a.eff.DBPath,
		"config_source", a.eff.Source,
	)
}

func (a *App) shutdown() {
	if a.reaperCancel != nil {
		a.reaperCancel()
	}
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = a.srv.Shutdown(sctx)
	}
	if err := store.Close(); err != nil {
		logger.Warn("store_close_failed", "error", err)
	}
}
