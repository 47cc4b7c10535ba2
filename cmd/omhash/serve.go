package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/omhash/internal/version"
)

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("Starting omhash admin server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.String("addr", a.cfg.HTTP.Addr),
		zap.String("db_driver", a.cfg.Database.Driver),
		zap.Strings("db_addrs", a.cfg.Database.Addrs),
		zap.Bool("embedding", a.cfg.Embedding.Enabled()),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.client.EnsureIndexes(ctx); err != nil {
		// Health reports degraded until POST /indexes/{keyspace} succeeds.
		a.logger.Error("Failed to ensure indexes", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      a.client.AdminHandler(a.cfg.HTTP.APIKeys),
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.logger.Info("Server stopped")
	return nil
}
