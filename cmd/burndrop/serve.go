package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/burndrop/config"
	burnhttp "github.com/sagarc03/burndrop/http"
)

// staleTempAge is how old an abandoned upload temp file must be before it is removed.
const staleTempAge = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the burndrop HTTP server together with the background sweeper
that reclaims expired and exhausted shares.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 5708, "HTTP server port (env: BURNDROP_SERVER_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()

	service, err := newService(cfg, b)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	if b.files != nil {
		if removed, err := b.files.RemoveStaleTemp(ctx, staleTempAge); err != nil {
			slog.Warn("remove stale temp files", "err", err)
		} else if removed > 0 {
			slog.Info("removed stale temp files", "count", removed)
		}
	}

	if cfg.Sweeper.Enabled {
		stopSweeper := newSweeper(cfg, b).Start(ctx)
		defer stopSweeper()
	}

	var limiter *burnhttp.AttemptLimiter
	if cfg.RateLimit.PasswordAttempts > 0 {
		limiter = burnhttp.NewAttemptLimiter(cfg.RateLimit.PasswordAttempts, cfg.RateLimit.CacheSize, cfg.RateLimit.Window)
	}

	handler := burnhttp.NewHandler(&burnhttp.HandlerConfig{
		MaxUploadSize:     cfg.Server.MaxUploadSize,
		ConcealAuthErrors: cfg.Server.ConcealAuthErrors,
		TrustProxy:        cfg.Server.TrustProxy,
		CORS:              cfg.CORS,
		Limiter:           limiter,
		StatsInterval:     cfg.Server.StatsInterval,
		Ready:             b.db.Ping,
		Logger:            slog.Default().With("component", "http"),
	}, service)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// live stats connections end when ctx is cancelled
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("starting server", "addr", addr, "database", cfg.Database.Type, "storage", cfg.Storage.Type)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
