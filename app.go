package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"gitea.kood.tech/petrkubec/purpose-match/backend/auth"
	"gitea.kood.tech/petrkubec/purpose-match/backend/config"
	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
	"gitea.kood.tech/petrkubec/purpose-match/backend/metrics"
	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

// App owns every long-lived component. The registry is created here once
// and shared by reference.
type App struct {
	cfg *config.Config
	log logging.Logger

	backendName string
	store       store.Store
	registry    *realtime.Registry
	metrics     *metrics.Metrics
	images      *imageStore
	svc         *matching.Service

	migrate    func(ctx context.Context) error
	closeStore func() error
}

func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	b, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	images, err := newImageStore(ctx, cfg.Storage)
	if err != nil {
		_ = b.close()
		return nil, err
	}
	if images == nil {
		log.Info(ctx, "S3 bucket not set, image endpoints disabled")
	}
	return newApp(cfg, log, b, images), nil
}

func newApp(cfg *config.Config, log logging.Logger, b *backend, images *imageStore) *App {
	registry := realtime.NewRegistry(log.With("component", "registry"))
	m := metrics.New()
	m.TrackOpenChannels(registry.Len)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	return &App{
		cfg:         cfg,
		log:         log,
		backendName: b.name,
		store:       b.store,
		registry:    registry,
		metrics:     m,
		images:      images,
		svc:         matching.New(b.store, registry, tokens, log.With("component", "matching"), m),
		migrate:     b.migrate,
		closeStore:  b.close,
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// for at most the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	addr := ":" + strconv.Itoa(a.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.routes(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "starting purpose-match backend", "addr", ln.Addr().String(), "backend", a.backendName, "env", a.cfg.Env)
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Migrate brings the backend schema up to date.
func (a *App) Migrate(ctx context.Context) error {
	return a.migrate(ctx)
}

func (a *App) Close() error {
	return a.closeStore()
}
