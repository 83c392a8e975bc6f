// Package app wires the storefront: storage backend, catalog client, stores, feeds and the HTTP bridge.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/favorites"
	"github.com/abgdnv/storefront/internal/feed"
	"github.com/abgdnv/storefront/internal/kvstore"
	"github.com/abgdnv/storefront/internal/platform/web"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ServiceName identifies the bridge in traces and metrics.
const ServiceName = "storefront-bridge"

type Dependencies struct {
	Catalog   *catalog.Client
	Cart      *cart.Store
	Favorites *favorites.Store
	Feeds     map[feed.Mode]*feed.Feed
	Logger    *slog.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewBackend opens the key-value backend selected by storage.driver.
// The returned release function frees backend resources and is never nil.
func NewBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kvstore.Store, func(), error) {
	noop := func() {}
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory storage, cart and favorites will not survive a restart")
		return kvstore.NewInMemoryStore(), noop, nil
	case config.DriverFile:
		store, err := kvstore.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Using file storage", "dir", cfg.Storage.Dir)
		return store, noop, nil
	case config.DriverPostgres:
		pool, err := kvstore.NewDbPool(ctx, cfg.Storage.Database.URL, cfg.Storage.Database.ConnectTimeout)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("Successfully connected to the database!")
		if err := kvstore.Migrate(cfg.Storage.Database.URL); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return kvstore.NewPgStore(pool), pool.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

// SetupDependencies builds every component once. Stores rehydrate from backend before returning.
func SetupDependencies(ctx context.Context, cfg *config.Config, backend kvstore.Store, logger *slog.Logger) (*Dependencies, error) {
	client, err := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, logger,
		catalog.WithCircuitBreaker(catalog.BreakerConfig{
			ConsecutiveFailures: cfg.Catalog.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Catalog.Breaker.OpenTimeout,
			HalfOpenRequests:    cfg.Catalog.Breaker.HalfOpenRequests,
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		Catalog:   client,
		Cart:      cart.NewStore(ctx, backend, logger),
		Favorites: favorites.NewStore(ctx, backend, logger),
		Feeds: map[feed.Mode]*feed.Feed{
			feed.ModeBrowse: feed.New(client, cfg.Catalog.PageSize, logger),
			feed.ModeSearch: feed.New(client, cfg.Catalog.PageSize, logger),
		},
		Logger: logger,
	}, nil
}

// Close flushes pending store writes and stops the store writers.
func (d *Dependencies) Close(ctx context.Context) error {
	return errors.Join(
		d.Cart.Close(ctx),
		d.Favorites.Close(ctx),
	)
}

// SetupHttpHandler builds the bridge router with request-id, logging and recovery middleware,
// wrapped in the otel HTTP instrumentation.
// Used by E2E tests to serve the bridge from an httptest.Server.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	api := rest.NewAPI(deps.Catalog, deps.Cart, deps.Favorites, deps.Feeds, deps.Logger)

	mux := chi.NewRouter()
	mux.Use(web.RequestIDInjector)
	mux.Use(web.StructuredLogger(deps.Logger))
	mux.Use(web.Recoverer(deps.Logger))
	if deps.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	api.Routes(mux)

	return otelhttp.NewHandler(mux, ServiceName)
}

// SetupHttpServer creates and configures the bridge HTTP server.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPServer.Port),
		Handler:           SetupHttpHandler(deps),
		ReadTimeout:       cfg.HTTPServer.Timeout.Read,
		WriteTimeout:      cfg.HTTPServer.Timeout.Write,
		IdleTimeout:       cfg.HTTPServer.Timeout.Idle,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout.ReadHeader,
		MaxHeaderBytes:    cfg.HTTPServer.MaxHeaderBytes,
	}
}
