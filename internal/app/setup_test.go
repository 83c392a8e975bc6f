package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/product"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	var cfg config.Config
	cfg.HTTPServer.Port = 8081
	cfg.HTTPServer.MaxHeaderBytes = 1 << 20
	cfg.HTTPServer.Timeout.Read = time.Second
	cfg.HTTPServer.Timeout.Write = time.Second
	cfg.HTTPServer.Timeout.Idle = time.Second
	cfg.HTTPServer.Timeout.ReadHeader = time.Second
	cfg.Catalog.BaseURL = "http://catalog.invalid/api/v1/products"
	cfg.Catalog.Timeout = time.Second
	cfg.Catalog.PageSize = 10
	cfg.Storage.Driver = config.DriverFile
	cfg.Storage.Dir = t.TempDir()
	return &cfg
}

func TestNewBackend(t *testing.T) {
	testCases := []struct {
		name    string
		driver  string
		wantErr bool
	}{
		{name: "memory", driver: config.DriverMemory},
		{name: "file", driver: config.DriverFile},
		{name: "unknown", driver: "redis", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Storage.Driver = tc.driver

			backend, release, err := NewBackend(context.Background(), cfg, slog.New(slog.DiscardHandler))

			require.NotNil(t, release)
			defer release()
			if tc.wantErr {
				assert.Error(t, err)
				assert.Nil(t, backend)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, backend)
		})
	}
}

func TestDependencies_StateSurvivesRestart(t *testing.T) {
	// given
	ctx := context.Background()
	cfg := testConfig(t)
	logger := slog.New(slog.DiscardHandler)
	backend, release, err := NewBackend(ctx, cfg, logger)
	require.NoError(t, err)
	defer release()

	first, err := SetupDependencies(ctx, cfg, backend, logger)
	require.NoError(t, err)
	first.Cart.AddItem(product.Product{ID: 3, Price: decimal.NewFromInt(4), Images: []string{}}, 2)
	first.Favorites.AddFavorite(product.Product{ID: 9, Images: []string{}})

	// when
	require.NoError(t, first.Close(ctx))
	second, err := SetupDependencies(ctx, cfg, backend, logger)
	require.NoError(t, err)
	defer func() { _ = second.Close(ctx) }()

	// then
	assert.Equal(t, 2, second.Cart.GetCartItemsCount())
	assert.True(t, second.Cart.GetCartTotal().Equal(decimal.NewFromInt(8)))
	assert.True(t, second.Favorites.IsFavorite(9))
}

func TestSetupDependencies_InvalidCatalogURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.BaseURL = "ftp://catalog"

	deps, err := SetupDependencies(context.Background(), cfg, nil, slog.New(slog.DiscardHandler))

	assert.Error(t, err)
	assert.Nil(t, deps)
}

func TestSetupHttpHandler(t *testing.T) {
	// given
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage.Driver = config.DriverMemory
	logger := slog.New(slog.DiscardHandler)
	backend, release, err := NewBackend(ctx, cfg, logger)
	require.NoError(t, err)
	defer release()
	deps, err := SetupDependencies(ctx, cfg, backend, logger)
	require.NoError(t, err)
	defer func() { _ = deps.Close(ctx) }()
	handler := SetupHttpHandler(deps)
	rr := httptest.NewRecorder()

	// when
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestSetupHttpHandler_MountsMetrics(t *testing.T) {
	// given
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage.Driver = config.DriverMemory
	logger := slog.New(slog.DiscardHandler)
	backend, release, err := NewBackend(ctx, cfg, logger)
	require.NoError(t, err)
	defer release()
	deps, err := SetupDependencies(ctx, cfg, backend, logger)
	require.NoError(t, err)
	defer func() { _ = deps.Close(ctx) }()
	deps.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("storefront_metric 1\n"))
	})
	rr := httptest.NewRecorder()

	// when
	SetupHttpHandler(deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "storefront_metric 1")
}

func TestSetupHttpServer(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	logger := slog.New(slog.DiscardHandler)
	backend, release, err := NewBackend(ctx, cfg, logger)
	require.NoError(t, err)
	defer release()
	deps, err := SetupDependencies(ctx, cfg, backend, logger)
	require.NoError(t, err)
	defer func() { _ = deps.Close(ctx) }()

	server := SetupHttpServer(deps, cfg)

	assert.Equal(t, ":8081", server.Addr)
	assert.Equal(t, time.Second, server.ReadHeaderTimeout)
	assert.Equal(t, 1<<20, server.MaxHeaderBytes)
	assert.NotNil(t, server.Handler)
}
