// Package main runs the storefront bridge: the local JSON API behind the mobile storefront screens.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/platform/logger"
	"github.com/abgdnv/storefront/internal/platform/telemetry"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const configFileEnvName = "STOREFRONT_CONFIG_FILE"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads configuration, wires the application and serves the bridge until ctx is done.
func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(configFilepath(args))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Printf("Configuration loaded: %v", cfg)

	appLogger := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(appLogger)

	providers, err := telemetry.Setup(ctx, app.ServiceName, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}

	backend, releaseBackend, err := app.NewBackend(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer releaseBackend()

	deps, err := app.SetupDependencies(ctx, cfg, backend, appLogger)
	if err != nil {
		return fmt.Errorf("failed to set up dependencies: %w", err)
	}
	deps.Metrics = providers.MetricsHandler()
	httpServer := app.SetupHttpServer(deps, cfg)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Storefront bridge started", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("storefront bridge failed: %w", err)
		}
		return nil
	})
	// stop serving first, then flush the stores so the last mutations reach storage, then the spans
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutting down storefront bridge...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return errors.Join(
			httpServer.Shutdown(shutdownCtx),
			deps.Close(shutdownCtx),
			providers.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

// configFilepath returns the --config flag value unless STOREFRONT_CONFIG_FILE overrides it.
func configFilepath(args []string) string {
	cmdLine := pflag.NewFlagSet(args[0], pflag.ExitOnError)
	path := cmdLine.String("config", config.DefaultConfigFile, "config file")
	_ = cmdLine.Parse(args[1:])
	if env, ok := os.LookupEnv(configFileEnvName); ok {
		return env
	}
	return *path
}
