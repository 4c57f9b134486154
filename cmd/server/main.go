// main.go - Application entry point
//
// PURPOSE:
//   Initializes and starts the commission engine server. Handles
//   configuration, dependency injection, and graceful shutdown.
//
// STARTUP SEQUENCE:
//   1. Load configuration (file, then COMMISSION_* environment)
//   2. Build zap logger
//   3. Open SQLite store
//   4. Create metrics registry and API handler
//   5. Start the reconciliation scheduler (if enabled)
//   6. Optionally load the demo scenario
//   7. Start server with graceful shutdown
//
// COMMAND-LINE FLAGS:
//   -config  YAML config path (default: $COMMISSION_CONFIG, else none)
//   -demo    Scenario to load at startup, overrides server.load_demo_data
//
// GRACEFUL SHUTDOWN:
//   On SIGINT/SIGTERM:
//   1. Stop accepting new connections
//   2. Wait for active requests (server.shutdown_timeout)
//   3. Stop the scheduler, waiting for a running sweep
//   4. Close database connection
//
// EXAMPLES:
//   ./server -config=config.yaml
//   COMMISSION_DB_PATH=":memory:" ./server -demo=sales-team
//   COMMISSION_RECONCILE_SCHEDULE="*/30 * * * * *" ./server
//
// SEE ALSO:
//   - config/config.go: Configuration keys and defaults
//   - api/server.go: Router configuration
//   - api/scheduler.go: Reconciliation sweep
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/config"
	"github.com/warp/commission-engine/logger"
	"github.com/warp/commission-engine/metrics"
	"github.com/warp/commission-engine/store/sqlite"
)

const defaultDemoScenario = "sales-team"

func main() {
	configPath := flag.String("config", os.Getenv("COMMISSION_CONFIG"), "YAML config file")
	demo := flag.String("demo", "", "demo scenario to load at startup")
	flag.Parse()

	if err := run(*configPath, *demo); err != nil {
		fmt.Fprintf(os.Stderr, "commission-engine: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, demo string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if cfg.DB.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	tolerance, err := cfg.Reconcile.ToleranceDecimal()
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	handler := api.NewHandler(store, api.Options{
		Logger:          log,
		Metrics:         m,
		Tolerance:       &tolerance,
		LookbackWeeks:   cfg.Forecast.LookbackWeeks,
		MaxForecastDays: cfg.Forecast.MaxWindowDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if demo == "" && cfg.Server.LoadDemoData {
		demo = defaultDemoScenario
	}
	if demo != "" {
		if err := handler.LoadDemo(ctx, demo); err != nil {
			return fmt.Errorf("load demo %s: %w", demo, err)
		}
		log.Info("demo scenario loaded", zap.String("scenario", demo))
	}

	if cfg.Reconcile.Enabled {
		if err := handler.Scheduler.Start(ctx, cfg.Reconcile.Schedule); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      api.NewRouter(handler, m, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Server.HTTPAddr), zap.String("env", cfg.App.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	handler.Scheduler.Stop(shutdownCtx)

	log.Info("server stopped")
	return nil
}
