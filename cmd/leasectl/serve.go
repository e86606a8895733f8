package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/leaseforge/lease-engine/api"
	"github.com/leaseforge/lease-engine/auth"
	"github.com/leaseforge/lease-engine/billing"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API and the overdue scheduler.

On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
for active requests, stops the scheduler and closes the database.`,
	Example: `  # Defaults from .env / environment
  leasectl serve

  # In-memory database on another port
  leasectl serve --db ":memory:" --port 3000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("port", "", "HTTP port (overrides APP_PORT)")
	serveCmd.Flags().String("db", "", "SQLite database path (overrides DB_PATH)")
	serveCmd.Flags().Bool("no-scheduler", false, "Do not run the overdue scheduler")
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetString("port")
	dbPath, _ := cmd.Flags().GetString("db")
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")
	if port == "" {
		port = cfg.App.Port
	}

	store, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	jwt := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)
	authSvc := auth.NewService(store, jwt, log)
	billingSvc := billing.NewService(store, store, log)
	handler := api.NewHandler(billingSvc, authSvc, log)

	if !noScheduler {
		scheduler := api.NewOverdueScheduler(billingSvc, log)
		scheduler.CheckInterval = cfg.Scheduler.OverdueInterval
		scheduler.Start()
		defer scheduler.Stop()
		handler.Scheduler = scheduler
	}

	limiter := api.NewRateLimiter(api.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RPS,
		BurstSize:         cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	server := &http.Server{
		Addr: ":" + port,
		Handler: api.NewRouter(handler, api.RouterConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			RateLimiter:    limiter,
			Logger:         log,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("version", version).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
