package app

import (
	"context"

	"github.com/stacklok/thv-git-api/internal/gitcmd"
	"github.com/stacklok/thv-git-api/internal/repository"
	"github.com/stacklok/thv-git-api/internal/telemetry"
)

// Worker is a background component started with the application
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Runner executes git
	Runner gitcmd.Runner

	// RepositoryService serves repository data and owns the caches
	RepositoryService repository.Service

	// Workers refresh and invalidate the caches in the background
	Workers []Worker

	// Telemetry owns the tracer and meter providers (optional)
	Telemetry *telemetry.Telemetry
}
