package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	gitapi "github.com/stacklok/thv-git-api/internal/app"
)

const (
	defaultAddress         = ":6969"
	defaultGracefulTimeout = 30 * time.Second // grace period for in-flight requests
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the git API server",
		Long: `Start the git API server.

The repository root is taken from the configuration file (--config) or from
--repos-root. The configuration file also controls:
- git invocation (binary, timeout, concurrency, log format)
- cache sizes, expiry and background refresh
- authentication and telemetry`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	serveCmd.Flags().String("address", defaultAddress, "Address to listen on")
	if err := v.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}

	return serveCmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	address := v.GetString("address")

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	slog.Info("Loaded configuration",
		"config", v.GetString("config"),
		"repos_root", cfg.ReposRoot,
		"auth_mode", cfg.GetAuth().GetMode())

	app, err := gitapi.NewGitAPIApp(ctx,
		gitapi.WithConfig(cfg),
		gitapi.WithAddress(address),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-errChan:
		if stopErr := app.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop application", "error", stopErr)
		}
		return err
	}

	return app.Stop(defaultGracefulTimeout)
}
