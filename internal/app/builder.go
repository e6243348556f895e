package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/thv-git-api/internal/api"
	"github.com/stacklok/thv-git-api/internal/auth"
	"github.com/stacklok/thv-git-api/internal/config"
	"github.com/stacklok/thv-git-api/internal/gitcmd"
	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/refresh"
	"github.com/stacklok/thv-git-api/internal/repository"
	"github.com/stacklok/thv-git-api/internal/telemetry"
	"github.com/stacklok/thv-git-api/internal/versions"
)

const (
	defaultHTTPAddress = ":6969"

	defaultRequestTimeout = 30 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 35 * time.Second // Must be > defaultRequestTimeout
	defaultIdleTimeout    = 60 * time.Second

	instrumentationName = "github.com/stacklok/thv-git-api"
)

// GitAPIAppOptions is a function that configures the git API app builder
type GitAPIAppOptions func(*gitAPIAppConfig) error

// gitAPIAppConfig collects the builder inputs
// It supports dependency injection for testing while providing sensible defaults for production
type gitAPIAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	runner    gitcmd.Runner
	service   repository.Service
	telemetry *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Auth components
	authMiddleware func(http.Handler) http.Handler
	signInHandler  http.Handler
}

func baseConfig(opts ...GitAPIAppOptions) (*gitAPIAppConfig, error) {
	cfg := &gitAPIAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewGitAPIApp builds the application from the given options
func NewGitAPIApp(
	ctx context.Context,
	opts ...GitAPIAppOptions,
) (*GitAPIApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.config.Telemetry))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	// Flush the providers if a later step fails
	var cleanupNeeded = true
	defer func() {
		if cleanupNeeded {
			if err := cfg.telemetry.Shutdown(context.Background()); err != nil {
				slog.Warn("Failed to shut down telemetry", "error", err)
			}
		}
	}()

	runner, err := buildRunner(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build git runner: %w", err)
	}

	svc, err := buildRepositoryService(cfg, runner)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository service: %w", err)
	}

	workers, err := buildWorkers(cfg, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to build background workers: %w", err)
	}

	if cfg.authMiddleware == nil {
		cfg.authMiddleware, cfg.signInHandler, err = auth.NewAuthMiddleware(cfg.config.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to build auth middleware: %w", err)
		}
	}

	httpServer, err := buildHTTPServer(ctx, cfg, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &GitAPIApp{
		config: cfg.config,
		components: &AppComponents{
			Runner:            runner,
			RepositoryService: svc,
			Workers:           workers,
			Telemetry:         cfg.telemetry,
		},
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// NewRepositoryService builds the git runner and repository service described
// by the options, without an HTTP server, auth or background workers.
func NewRepositoryService(ctx context.Context, opts ...GitAPIAppOptions) (repository.Service, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.telemetry == nil {
		cfg.telemetry, err = telemetry.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	runner, err := buildRunner(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build git runner: %w", err)
	}
	return buildRepositoryService(cfg, runner)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) GitAPIAppOptions {
	return func(cfg *gitAPIAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) GitAPIAppOptions {
	return func(cfg *gitAPIAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) GitAPIAppOptions {
	return func(cfg *gitAPIAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRunner allows injecting a custom git runner (for testing)
func WithRunner(r gitcmd.Runner) GitAPIAppOptions {
	return func(cfg *gitAPIAppConfig) error {
		cfg.runner = r
		return nil
	}
}

// WithRepositoryService allows injecting a custom repository service (for testing)
func WithRepositoryService(svc repository.Service) GitAPIAppOptions {
	return func(cfg *gitAPIAppConfig) error {
		cfg.service = svc
		return nil
	}
}

// WithTelemetry sets already initialized telemetry providers
func WithTelemetry(t *telemetry.Telemetry) GitAPIAppOptions {
	return func(cfg *gitAPIAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// WithAuthMiddleware overrides the configured authentication (for testing)
func WithAuthMiddleware(mw func(http.Handler) http.Handler, signIn http.Handler) GitAPIAppOptions {
	return func(cfg *gitAPIAppConfig) error {
		if mw == nil {
			return fmt.Errorf("auth middleware cannot be nil")
		}
		cfg.authMiddleware = mw
		cfg.signInHandler = signIn
		return nil
	}
}

// buildRunner creates the git runner and checks the installed git version
func buildRunner(ctx context.Context, b *gitAPIAppConfig) (gitcmd.Runner, error) {
	if b.runner != nil {
		return b.runner, nil
	}

	gitCfg := b.config.GetGit()
	gitMetrics, err := telemetry.NewGitMetrics(b.telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create git metrics: %w", err)
	}

	runner := gitcmd.NewExecRunner(
		gitcmd.WithBinary(gitCfg.Binary),
		gitcmd.WithTimeout(gitCfg.GetCommandTimeout(gitcmd.DefaultTimeout)),
		gitcmd.WithMaxConcurrent(gitCfg.MaxConcurrentCommands),
		gitcmd.WithMetrics(gitMetrics),
		gitcmd.WithTracer(b.telemetry.Tracer(instrumentationName+"/gitcmd")),
	)

	version, err := runner.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run git: %w", err)
	}
	if err := versions.CheckGitVersion(version); err != nil {
		return nil, err
	}
	slog.Info("Using git", "version", version)

	return runner, nil
}

// buildRepositoryService creates the repository service with the configured cache policy
func buildRepositoryService(b *gitAPIAppConfig, runner gitcmd.Runner) (repository.Service, error) {
	if b.service != nil {
		return b.service, nil
	}

	gitCfg := b.config.GetGit()
	format, err := gitlog.FormatByName(gitCfg.LogFormat)
	if err != nil {
		return nil, err
	}

	provider := b.telemetry.MeterProvider()
	cacheMetrics, err := telemetry.NewCacheMetrics(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}
	repositoryMetrics, err := telemetry.NewRepositoryMetrics(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository metrics: %w", err)
	}

	opts := []repository.Option{
		repository.WithLogFormat(format),
		repository.WithCachePolicy(cachePolicy(b.config.GetCache()).WithMetrics(cacheMetrics)),
		repository.WithRepositoryMetrics(repositoryMetrics),
		repository.WithTracer(b.telemetry.Tracer(instrumentationName + "/repository")),
	}
	if gitCfg.DefaultBranch != "" {
		opts = append(opts, repository.WithDefaultBranch(gitCfg.DefaultBranch))
	}

	filter, err := b.config.NameFilter()
	if err != nil {
		return nil, err
	}
	if filter != nil {
		opts = append(opts, repository.WithNameFilter(filter))
	}

	slog.Info("Serving repositories", "root", b.config.ReposRoot, "log_format", format.Name(), "filtered", filter != nil)
	return repository.New(b.config.ReposRoot, runner, opts...)
}

// cachePolicy applies the configured overrides to the default cache policy
func cachePolicy(c *config.CacheConfig) repository.CachePolicy {
	policy := repository.DefaultCachePolicy()
	policy.Repositories = c.Repositories.Apply(policy.Repositories)
	policy.CommitLogs = c.CommitLogs.Apply(policy.CommitLogs)
	policy.BranchTrees = c.BranchTrees.Apply(policy.BranchTrees)
	policy.ObjectTrees = c.ObjectTrees.Apply(policy.ObjectTrees)
	policy.Objects = c.Objects.Apply(policy.Objects)
	policy.ObjectPaths = c.ObjectPaths.Apply(policy.ObjectPaths)
	return policy
}

// buildWorkers creates the refresh coordinator and the ref watcher when enabled
func buildWorkers(b *gitAPIAppConfig, svc repository.Service) ([]Worker, error) {
	cacheCfg := b.config.GetCache()
	var workers []Worker

	if interval := cacheCfg.GetRefreshInterval(refresh.DefaultInterval); interval > 0 {
		refreshMetrics, err := telemetry.NewRefreshMetrics(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create refresh metrics: %w", err)
		}
		workers = append(workers, refresh.NewCoordinator(svc,
			refresh.WithInterval(interval),
			refresh.WithRefreshMetrics(refreshMetrics),
		))
	} else {
		slog.Info("Background repository refresh disabled")
	}

	if cacheCfg.WatchEnabled() {
		workers = append(workers, refresh.NewWatcher(b.config.ReposRoot, svc))
	} else {
		slog.Info("Repository watcher disabled")
	}

	return workers, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *gitAPIAppConfig,
	svc repository.Service,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	var prefix []func(http.Handler) http.Handler
	if b.telemetry != nil {
		// Tracing and metrics go first so requests rejected by auth are recorded too
		prefix = append(prefix, telemetry.TracingMiddleware(b.telemetry.TracerProvider()))
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			prefix = append(prefix, metricsMiddleware)
		}
	}
	if cors := b.config.GetCORS(); cors != nil {
		// Preflight requests carry no credentials
		prefix = append(prefix, api.CORSMiddleware(cors.GetAllowedOrigins(), cors.GetMaxAge()))
	}
	b.middlewares = append(prefix, b.middlewares...)

	if b.authMiddleware != nil {
		b.middlewares = append(b.middlewares, b.authMiddleware)
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(b.middlewares...),
		api.WithSignInHandler(b.signInHandler),
	}
	if b.telemetry != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.telemetry.MetricsHandler()))
	}
	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
