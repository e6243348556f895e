// Package app provides application lifecycle management for the git API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/stacklok/thv-git-api/internal/config"
)

// GitAPIApp encapsulates all components needed to run the git API server
// It provides lifecycle management and graceful shutdown capabilities
type GitAPIApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	workers    sync.WaitGroup
}

// Start starts the background workers and the HTTP server
// This method blocks until the HTTP server stops or encounters an error
func (app *GitAPIApp) Start() error {
	for _, w := range app.components.Workers {
		app.workers.Add(1)
		go func() {
			defer app.workers.Done()
			if err := w.Start(app.ctx); err != nil {
				slog.Error("Background worker failed", "worker", fmt.Sprintf("%T", w), "error", err)
			}
		}()
	}

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout
// It stops the background workers, shuts down the HTTP server and flushes telemetry
func (app *GitAPIApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	for _, w := range app.components.Workers {
		if err := w.Stop(); err != nil {
			slog.Error("Failed to stop background worker", "worker", fmt.Sprintf("%T", w), "error", err)
		}
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}
	app.workers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if app.components.Telemetry != nil {
		if err := app.components.Telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown failed: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *GitAPIApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *GitAPIApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
