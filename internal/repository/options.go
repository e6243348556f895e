package repository

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/thv-git-api/internal/cache"
	"github.com/stacklok/thv-git-api/internal/filtering"
	"github.com/stacklok/thv-git-api/internal/git"
	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/telemetry"
)

// DefaultBranch is used when a repository's HEAD cannot be read
const DefaultBranch = "master"

// CachePolicy holds the options of every cache owned by the service
type CachePolicy struct {
	Repositories cache.Options
	CommitLogs   cache.Options
	BranchTrees  cache.Options
	ObjectTrees  cache.Options
	Objects      cache.Options
	ObjectPaths  cache.Options
}

// DefaultCachePolicy returns the cache policy used when none is configured.
// Branch dependent results expire; results keyed by object id never change
// and only fall out through LRU eviction.
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{
		Repositories: cache.Options{TTL: 5 * time.Minute},
		CommitLogs:   cache.Options{TTL: time.Minute, MaxEntries: 1000},
		BranchTrees:  cache.Options{TTL: time.Minute, MaxEntries: 1000},
		ObjectTrees:  cache.Options{MaxEntries: 1000},
		Objects:      cache.Options{MaxEntries: 1000},
		ObjectPaths:  cache.Options{MaxEntries: 10000},
	}
}

// WithMetrics returns a copy of the policy with metrics set on every cache
func (p CachePolicy) WithMetrics(m *telemetry.CacheMetrics) CachePolicy {
	p.Repositories.Metrics = m
	p.CommitLogs.Metrics = m
	p.BranchTrees.Metrics = m
	p.ObjectTrees.Metrics = m
	p.Objects.Metrics = m
	p.ObjectPaths.Metrics = m
	return p
}

// Option is a functional option for configuring the service
type Option func(*gitService)

// WithLogFormat sets the log format used for every "git log" call
func WithLogFormat(format gitlog.Format) Option {
	return func(s *gitService) {
		if format != nil {
			s.format = format
		}
	}
}

// WithDefaultBranch sets the branch used when HEAD cannot be read
func WithDefaultBranch(branch string) Option {
	return func(s *gitService) {
		if branch != "" {
			s.defaultBranch = branch
		}
	}
}

// WithInspector sets the go-git inspector used to read HEAD
func WithInspector(inspector git.Inspector) Option {
	return func(s *gitService) {
		s.inspector = inspector
	}
}

// WithNameFilter limits the served repositories. A nil filter serves every repository.
func WithNameFilter(filter *filtering.NameFilter) Option {
	return func(s *gitService) {
		s.filter = filter
	}
}

// WithCachePolicy sets the cache policy
func WithCachePolicy(policy CachePolicy) Option {
	return func(s *gitService) {
		s.cachePolicy = policy
	}
}

// WithConcurrency bounds the parallel work of one request (repository scan and tree entry lookups)
func WithConcurrency(n int) Option {
	return func(s *gitService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTracer sets the tracer used for service spans
func WithTracer(tracer trace.Tracer) Option {
	return func(s *gitService) {
		s.tracer = tracer
	}
}

// WithRepositoryMetrics sets the repository metrics recorder
func WithRepositoryMetrics(m *telemetry.RepositoryMetrics) Option {
	return func(s *gitService) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *gitService) {
		if logger != nil {
			s.logger = logger
		}
	}
}
