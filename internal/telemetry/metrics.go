package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RepositoryMetricsMeterName is the name used for the repository metrics meter
	RepositoryMetricsMeterName = "github.com/stacklok/thv-git-api/repository"

	// RefreshMetricsMeterName is the name used for the refresh metrics meter
	RefreshMetricsMeterName = "github.com/stacklok/thv-git-api/refresh"

	// GitMetricsMeterName is the name used for the git subprocess metrics meter
	GitMetricsMeterName = "github.com/stacklok/thv-git-api/gitcmd"

	// CacheMetricsMeterName is the name used for the cache metrics meter
	CacheMetricsMeterName = "github.com/stacklok/thv-git-api/cache"
)

// RepositoryMetrics holds the OpenTelemetry instruments for repository metrics
type RepositoryMetrics struct {
	repositoriesTotal metric.Int64Gauge
}

// NewRepositoryMetrics creates a new RepositoryMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRepositoryMetrics(provider metric.MeterProvider) (*RepositoryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RepositoryMetricsMeterName)

	repositoriesTotal, err := meter.Int64Gauge(
		"thv_git_repositories_total",
		metric.WithDescription("Number of repositories served from the repository root"),
		metric.WithUnit("{repository}"),
	)
	if err != nil {
		return nil, err
	}

	return &RepositoryMetrics{
		repositoriesTotal: repositoriesTotal,
	}, nil
}

// RecordRepositoriesTotal records the number of repositories found in the last listing
func (m *RepositoryMetrics) RecordRepositoriesTotal(ctx context.Context, count int64) {
	if m == nil || m.repositoriesTotal == nil {
		return
	}

	m.repositoriesTotal.Record(ctx, count)
}

// RefreshMetrics holds the OpenTelemetry instruments for background refresh metrics
type RefreshMetrics struct {
	refreshDuration metric.Float64Histogram
}

// NewRefreshMetrics creates a new RefreshMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRefreshMetrics(provider metric.MeterProvider) (*RefreshMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RefreshMetricsMeterName)

	refreshDuration, err := meter.Float64Histogram(
		"thv_git_refresh_duration_seconds",
		metric.WithDescription("Duration of repository list refreshes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	return &RefreshMetrics{
		refreshDuration: refreshDuration,
	}, nil
}

// RecordRefreshDuration records the duration of one refresh and whether it succeeded
func (m *RefreshMetrics) RecordRefreshDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.refreshDuration == nil {
		return
	}

	m.refreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// GitMetrics holds the OpenTelemetry instruments for git subprocess metrics
type GitMetrics struct {
	commandDuration metric.Float64Histogram
	commandFailures metric.Int64Counter
}

// NewGitMetrics creates a new GitMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewGitMetrics(provider metric.MeterProvider) (*GitMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(GitMetricsMeterName)

	commandDuration, err := meter.Float64Histogram(
		"thv_git_command_duration_seconds",
		metric.WithDescription("Duration of git subprocess invocations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	commandFailures, err := meter.Int64Counter(
		"thv_git_command_failures_total",
		metric.WithDescription("Number of git subprocess invocations that failed or timed out"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	return &GitMetrics{
		commandDuration: commandDuration,
		commandFailures: commandFailures,
	}, nil
}

// RecordCommand records one git invocation
func (m *GitMetrics) RecordCommand(ctx context.Context, subcommand string, duration time.Duration, success bool) {
	if m == nil || m.commandDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("subcommand", subcommand),
		attribute.Bool("success", success),
	)
	m.commandDuration.Record(ctx, duration.Seconds(), attrs)
	if !success && m.commandFailures != nil {
		m.commandFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("subcommand", subcommand)))
	}
}

// CacheMetrics holds the OpenTelemetry instruments for cache metrics
type CacheMetrics struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewCacheMetrics creates a new CacheMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCacheMetrics(provider metric.MeterProvider) (*CacheMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CacheMetricsMeterName)

	hits, err := meter.Int64Counter(
		"thv_git_cache_hits_total",
		metric.WithDescription("Number of cache lookups served from memory"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"thv_git_cache_misses_total",
		metric.WithDescription("Number of cache lookups that required a computation"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &CacheMetrics{
		hits:   hits,
		misses: misses,
	}, nil
}

// RecordHit records a cache hit for the named cache
func (m *CacheMetrics) RecordHit(ctx context.Context, cacheName string) {
	if m == nil || m.hits == nil {
		return
	}
	m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}

// RecordMiss records a cache miss for the named cache
func (m *CacheMetrics) RecordMiss(ctx context.Context, cacheName string) {
	if m == nil || m.misses == nil {
		return
	}
	m.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}
