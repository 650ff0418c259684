// Package app wires the hub's services together with a samber/do injector.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/connstate"
	"github.com/nfrund/huddle/internal/hub"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/server"
	"github.com/nfrund/huddle/internal/websocket"
)

// redisKeyPrefix namespaces connection state records in a shared Redis.
const redisKeyPrefix = "huddle:conn:"

// stateRefreshDivisor sets how many times per TTL live Redis records are
// touched, so a single missed refresh does not expire them.
const stateRefreshDivisor = 3

// App owns the injector and the lifecycle of everything it builds.
type App struct {
	cfg      *config.Config
	injector *do.RootScope
}

// New registers every service provider. Nothing is constructed until it is
// first needed.
func New(cfg *config.Config) *App {
	i := do.New()
	do.ProvideValue(i, cfg)
	do.Provide(i, provideTracing)
	do.Provide(i, provideBus)
	do.Provide(i, provideStore)
	do.Provide(i, provideMetrics)
	do.Provide(i, provideRouter)
	do.Provide(i, provideRegistry)
	do.Provide(i, provideBridge)
	do.Provide(i, provideServer)

	return &App{cfg: cfg, injector: i}
}

// Server builds, or returns the already built, HTTP server.
func (a *App) Server() (*server.Server, error) {
	return do.Invoke[*server.Server](a.injector)
}

// Bus returns the in-process message bus.
func (a *App) Bus() (*pubsub.WatermillBridge, error) {
	b, err := do.Invoke[*bus](a.injector)
	if err != nil {
		return nil, err
	}
	return b.WatermillBridge, nil
}

// Run serves until ctx is canceled, then shuts everything down within the
// configured timeout.
func (a *App) Run(ctx context.Context) error {
	srv, err := a.Server()
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	b, err := a.Bus()
	if err != nil {
		return err
	}
	registry := do.MustInvoke[*hub.Registry](a.injector)
	router := do.MustInvoke[*hub.Router](a.injector)
	if err := registry.SubscribeBroadcasts(ctx, b, router); err != nil {
		return fmt.Errorf("subscribing to broadcasts: %w", err)
	}

	runErr := srv.Start(ctx, a.cfg.Addr)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops every constructed service, dependents before their
// dependencies.
func (a *App) Shutdown(ctx context.Context) error {
	errs := a.injector.ShutdownWithContext(ctx)
	if errs != nil && errs.Len() > 0 {
		return errs
	}
	slog.Info("Shutdown complete")
	return nil
}

// tracing carries the tracer and flushes it on shutdown.
type tracing struct {
	tracer  trace.Tracer
	cleanup func()
}

func (t *tracing) Shutdown() {
	t.cleanup()
}

func provideTracing(i do.Injector) (*tracing, error) {
	cfg := do.MustInvoke[*config.Config](i)
	tracer, cleanup, err := pubsub.SetupOTel(context.Background(), cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	return &tracing{tracer: tracer, cleanup: cleanup}, nil
}

// bus closes the message bus on shutdown.
type bus struct {
	*pubsub.WatermillBridge
}

func (b *bus) Shutdown() error {
	return b.Close()
}

func provideBus(i do.Injector) (*bus, error) {
	t := do.MustInvoke[*tracing](i)
	return &bus{pubsub.NewWatermillBridgeWithTracer(t.tracer)}, nil
}

// stateStore closes the connection state backend on shutdown.
type stateStore struct {
	*connstate.Store
}

func (s *stateStore) Shutdown() error {
	return s.Close()
}

func provideStore(i do.Injector) (*stateStore, error) {
	cfg := do.MustInvoke[*config.Config](i)

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Connection state backend ready", "backend", cfg.StateBackend)
	return &stateStore{connstate.NewStore(backend, connstate.WithTimeout(cfg.StoreTimeout))}, nil
}

func newBackend(cfg *config.Config) (connstate.Backend, error) {
	switch cfg.StateBackend {
	case config.BackendFile:
		return connstate.NewFileBackend(afero.NewOsFs(), cfg.StateDir)
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
		defer cancel()
		return connstate.DialRedis(ctx, cfg.RedisURL, redisKeyPrefix, cfg.StateTTL)
	default:
		return connstate.NewMemoryBackend(), nil
	}
}

func provideMetrics(i do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

func provideRouter(i do.Injector) (*hub.Router, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return hub.NewRouter(cfg.Party), nil
}

func provideRegistry(i do.Injector) (*hub.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	store := do.MustInvoke[*stateStore](i)
	b := do.MustInvoke[*bus](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	opts := []hub.Option{
		hub.WithPublisher(b),
		hub.WithMetrics(m),
		hub.WithHibernateAfter(cfg.HibernateAfter),
	}
	if cfg.StateBackend == config.BackendRedis && cfg.StateTTL > 0 {
		opts = append(opts, hub.WithStateRefresh(cfg.StateTTL/stateRefreshDivisor))
	}
	return hub.NewRegistry(store.Store, opts...), nil
}

func provideBridge(i do.Injector) (*websocket.Bridge, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return websocket.NewBridge(
		do.MustInvoke[*hub.Registry](i),
		do.MustInvoke[*hub.Router](i),
		websocket.Config{
			SendBuffer:     cfg.SendBuffer,
			WriteTimeout:   cfg.WriteTimeout,
			ReadLimit:      cfg.ReadLimit,
			AllowedOrigins: cfg.AllowedOrigins,
		},
	), nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	s := server.New(
		do.MustInvoke[*hub.Registry](i),
		do.MustInvoke[*hub.Router](i),
		do.MustInvoke[*websocket.Bridge](i),
		do.MustInvoke[*metrics.Metrics](i),
	)
	s.RegisterRoutes()
	return s, nil
}
