// Package config provides configuration loading and management for the git API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/thv-git-api/internal/cache"
	"github.com/stacklok/thv-git-api/internal/filtering"
	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/pathguard"
	"github.com/stacklok/thv-git-api/internal/telemetry"
)

// EnvPrefix is the prefix of environment variables read by the server
const EnvPrefix = "THV_GIT"

const (
	// AuthModeAnonymous serves every route without credentials
	AuthModeAnonymous = "anonymous"

	// AuthModeJWT requires a bearer token on every non-public route
	AuthModeJWT = "jwt"

	// JWTSecretEnvVar holds the token signing secret when no secret file is configured
	JWTSecretEnvVar = EnvPrefix + "_JWT_SECRET"

	// DefaultTokenLifetime is how long issued tokens stay valid
	DefaultTokenLifetime = 24 * time.Hour
)

const (
	// DefaultCORSMaxAge is how long browsers may cache a preflight response
	DefaultCORSMaxAge = time.Hour
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path      string
	reposRoot string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Note that EvalSymlinks calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithReposRoot overrides the repository root of the loaded configuration.
// Without WithConfigPath it is the whole configuration.
func WithReposRoot(root string) Option {
	return func(cfg *loaderConfig) error {
		if root == "" {
			return fmt.Errorf("repository root is required")
		}
		cfg.reposRoot = root
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// ReposRoot is the directory holding one <name>.git bare repository per served repository
	ReposRoot string `yaml:"reposRoot"`

	Server    *ServerConfig     `yaml:"server,omitempty"`
	Git       *GitConfig        `yaml:"git,omitempty"`
	Cache     *CacheConfig      `yaml:"cache,omitempty"`
	Auth      *AuthConfig       `yaml:"auth,omitempty"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// Filter limits which repositories below ReposRoot are served
	Filter *FilterConfig `yaml:"filter,omitempty"`
}

// FilterConfig defines filtering rules for repositories
type FilterConfig struct {
	Names *NameFilterConfig `yaml:"names,omitempty"`
}

// NameFilterConfig defines name-based filtering with glob patterns
type NameFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// ServerConfig holds HTTP settings that are not command line flags
type ServerConfig struct {
	CORS *CORSConfig `yaml:"cors,omitempty"`
}

// CORSConfig enables cross-origin requests from browsers
type CORSConfig struct {
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins defaults to any origin
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`

	// MaxAge is the preflight cache duration, e.g. "1h"
	MaxAge string `yaml:"maxAge,omitempty"`
}

// GitConfig controls how git is invoked
type GitConfig struct {
	// Binary is the git executable, looked up on PATH when not absolute
	Binary string `yaml:"binary,omitempty"`

	// DefaultBranch is used when a repository's HEAD does not name a branch
	DefaultBranch string `yaml:"defaultBranch,omitempty"`

	// LogFormat is "delimited" (default) or "block"
	LogFormat string `yaml:"logFormat,omitempty"`

	// CommandTimeout bounds a single git invocation, e.g. "30s"
	CommandTimeout string `yaml:"commandTimeout,omitempty"`

	// MaxConcurrentCommands bounds the git processes running at once. Zero means the runner default.
	MaxConcurrentCommands int `yaml:"maxConcurrentCommands,omitempty"`
}

// CacheConfig holds the per-cache limits and the invalidation settings
type CacheConfig struct {
	Repositories *CacheEntryConfig `yaml:"repositories,omitempty"`
	CommitLogs   *CacheEntryConfig `yaml:"commitLogs,omitempty"`
	BranchTrees  *CacheEntryConfig `yaml:"branchTrees,omitempty"`
	ObjectTrees  *CacheEntryConfig `yaml:"objectTrees,omitempty"`
	Objects      *CacheEntryConfig `yaml:"objects,omitempty"`
	ObjectPaths  *CacheEntryConfig `yaml:"objectPaths,omitempty"`

	// RefreshInterval is how often the repository list is rebuilt in the background.
	// "0" disables the refresh loop.
	RefreshInterval string `yaml:"refreshInterval,omitempty"`

	// Watch invalidates a repository's caches when its refs change on disk. Defaults to true.
	Watch *bool `yaml:"watch,omitempty"`
}

// CacheEntryConfig overrides the limits of one cache
type CacheEntryConfig struct {
	// TTL is how long entries stay valid, e.g. "5m". "0" disables expiry.
	TTL string `yaml:"ttl,omitempty"`

	// MaxEntries bounds the cache size. Zero keeps the default.
	MaxEntries int `yaml:"maxEntries,omitempty"`
}

// AuthConfig configures request authentication
type AuthConfig struct {
	// Mode is "anonymous" (default) or "jwt"
	Mode string `yaml:"mode,omitempty"`

	// SecretFile contains the HS256 signing secret.
	// When empty the secret is read from THV_GIT_JWT_SECRET.
	SecretFile string `yaml:"secretFile,omitempty"`

	// TokenLifetime is the validity of tokens issued by sign-in, e.g. "24h"
	TokenLifetime string `yaml:"tokenLifetime,omitempty"`

	// Users may sign in with HTTP basic auth; the password is the user's key
	Users []UserConfig `yaml:"users,omitempty"`

	// PublicPaths are served without a token in addition to the built-in ones
	PublicPaths []string `yaml:"publicPaths,omitempty"`
}

// UserConfig is one account allowed to sign in
type UserConfig struct {
	// ID is the user's UUID, carried in issued tokens
	ID string `yaml:"id"`

	// Key is the user's secret
	Key string `yaml:"key"`
}

// LoadConfig loads, defaults and validates the configuration
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" && loaderCfg.reposRoot == "" {
		return nil, fmt.Errorf("either a config path or a repository root is required")
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if loaderCfg.reposRoot != "" {
		config.ReposRoot = loaderCfg.reposRoot
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate reports every configuration error at once
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	if c.ReposRoot == "" {
		errs = append(errs, fmt.Errorf("reposRoot is required"))
	}
	if c.Server != nil {
		errs = append(errs, validateCORS(c.Server.CORS))
	}
	errs = append(errs, validateGit(c.Git), validateCache(c.Cache), validateAuth(c.Auth), validateFilter(c.Filter))
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}

func validateCORS(cors *CORSConfig) error {
	if cors == nil || cors.MaxAge == "" {
		return nil
	}
	if _, err := parseDuration(cors.MaxAge); err != nil {
		return fmt.Errorf("server.cors.maxAge %w", err)
	}
	return nil
}

func validateGit(git *GitConfig) error {
	if git == nil {
		return nil
	}

	var errs []error
	if git.DefaultBranch != "" {
		if _, err := pathguard.ValidateBranchName(git.DefaultBranch); err != nil {
			errs = append(errs, fmt.Errorf("git.defaultBranch: %w", err))
		}
	}
	if git.LogFormat != "" {
		if _, err := gitlog.FormatByName(git.LogFormat); err != nil {
			errs = append(errs, fmt.Errorf("git.logFormat: %w", err))
		}
	}
	if git.CommandTimeout != "" {
		if d, err := parseDuration(git.CommandTimeout); err != nil || d == 0 {
			errs = append(errs, fmt.Errorf("git.commandTimeout must be a positive duration (e.g., '30s'), got %q", git.CommandTimeout))
		}
	}
	if git.MaxConcurrentCommands < 0 {
		errs = append(errs, fmt.Errorf("git.maxConcurrentCommands must not be negative, got %d", git.MaxConcurrentCommands))
	}
	return errors.Join(errs...)
}

func validateCache(c *CacheConfig) error {
	if c == nil {
		return nil
	}

	var errs []error
	entries := map[string]*CacheEntryConfig{
		"repositories": c.Repositories,
		"commitLogs":   c.CommitLogs,
		"branchTrees":  c.BranchTrees,
		"objectTrees":  c.ObjectTrees,
		"objects":      c.Objects,
		"objectPaths":  c.ObjectPaths,
	}
	for _, name := range []string{"repositories", "commitLogs", "branchTrees", "objectTrees", "objects", "objectPaths"} {
		entry := entries[name]
		if entry == nil {
			continue
		}
		if entry.TTL != "" {
			if _, err := parseDuration(entry.TTL); err != nil {
				errs = append(errs, fmt.Errorf("cache.%s.ttl %w", name, err))
			}
		}
		if entry.MaxEntries < 0 {
			errs = append(errs, fmt.Errorf("cache.%s.maxEntries must not be negative, got %d", name, entry.MaxEntries))
		}
	}
	if c.RefreshInterval != "" {
		if _, err := parseDuration(c.RefreshInterval); err != nil {
			errs = append(errs, fmt.Errorf("cache.refreshInterval %w", err))
		}
	}
	return errors.Join(errs...)
}

func validateAuth(a *AuthConfig) error {
	if a == nil {
		return nil
	}

	var errs []error
	switch a.GetMode() {
	case AuthModeAnonymous, AuthModeJWT:
	default:
		errs = append(errs, fmt.Errorf("auth.mode must be %q or %q, got %q", AuthModeAnonymous, AuthModeJWT, a.Mode))
	}
	if a.TokenLifetime != "" {
		if d, err := parseDuration(a.TokenLifetime); err != nil || d == 0 {
			errs = append(errs, fmt.Errorf("auth.tokenLifetime must be a positive duration (e.g., '24h'), got %q", a.TokenLifetime))
		}
	}

	ids := make(map[string]bool, len(a.Users))
	keys := make(map[string]bool, len(a.Users))
	for i, user := range a.Users {
		prefix := fmt.Sprintf("auth.users[%d]", i)
		if _, err := uuid.Parse(user.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: id must be a UUID: %w", prefix, err))
		} else if ids[strings.ToLower(user.ID)] {
			errs = append(errs, fmt.Errorf("%s: duplicate id '%s'", prefix, user.ID))
		}
		ids[strings.ToLower(user.ID)] = true

		if user.Key == "" {
			errs = append(errs, fmt.Errorf("%s: key is required", prefix))
		} else if keys[user.Key] {
			errs = append(errs, fmt.Errorf("%s: key is shared with another user", prefix))
		}
		keys[user.Key] = true
	}
	for i, p := range a.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("auth.publicPaths[%d]: must start with '/', got %q", i, p))
		}
	}
	return errors.Join(errs...)
}

func validateFilter(f *FilterConfig) error {
	if f == nil || f.Names == nil {
		return nil
	}

	var errs []error
	for i, p := range f.Names.Include {
		if _, err := filtering.CompilePattern(p); err != nil {
			errs = append(errs, fmt.Errorf("filter.names.include[%d]: %w", i, err))
		}
	}
	for i, p := range f.Names.Exclude {
		if _, err := filtering.CompilePattern(p); err != nil {
			errs = append(errs, fmt.Errorf("filter.names.exclude[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// parseDuration accepts Go durations and the literal "0"
func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("must be a valid duration (e.g., '30m', '1h'): %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %q", s)
	}
	return d, nil
}

// durationOr parses a value that validate has accepted, falling back to def when unset
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := parseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetGit returns the git section, never nil
func (c *Config) GetGit() *GitConfig {
	if c.Git == nil {
		return &GitConfig{}
	}
	return c.Git
}

// GetCache returns the cache section, never nil
func (c *Config) GetCache() *CacheConfig {
	if c.Cache == nil {
		return &CacheConfig{}
	}
	return c.Cache
}

// GetAuth returns the auth section, never nil
func (c *Config) GetAuth() *AuthConfig {
	if c.Auth == nil {
		return &AuthConfig{}
	}
	return c.Auth
}

// NameFilter compiles the repository name filter. It returns nil when no
// patterns are configured.
func (c *Config) NameFilter() (*filtering.NameFilter, error) {
	if c.Filter == nil || c.Filter.Names == nil {
		return nil, nil
	}
	f, err := filtering.NewNameFilter(c.Filter.Names.Include, c.Filter.Names.Exclude)
	if err != nil {
		return nil, fmt.Errorf("filter.names: %w", err)
	}
	if f.Empty() {
		return nil, nil
	}
	return f, nil
}

// GetCORS returns the CORS settings, or nil when CORS is disabled
func (c *Config) GetCORS() *CORSConfig {
	if c.Server == nil || c.Server.CORS == nil || !c.Server.CORS.Enabled {
		return nil
	}
	return c.Server.CORS
}

// GetAllowedOrigins returns the allowed origins, "*" when unset
func (c *CORSConfig) GetAllowedOrigins() []string {
	if len(c.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.AllowedOrigins
}

// GetMaxAge returns the preflight cache duration
func (c *CORSConfig) GetMaxAge() time.Duration {
	return durationOr(c.MaxAge, DefaultCORSMaxAge)
}

// GetCommandTimeout returns the per-command timeout, or def when unset
func (g *GitConfig) GetCommandTimeout(def time.Duration) time.Duration {
	return durationOr(g.CommandTimeout, def)
}

// GetRefreshInterval returns the background refresh interval, or def when unset
func (c *CacheConfig) GetRefreshInterval(def time.Duration) time.Duration {
	return durationOr(c.RefreshInterval, def)
}

// WatchEnabled reports whether ref changes on disk invalidate caches
func (c *CacheConfig) WatchEnabled() bool {
	return c.Watch == nil || *c.Watch
}

// Apply returns def with the configured overrides applied
func (e *CacheEntryConfig) Apply(def cache.Options) cache.Options {
	if e == nil {
		return def
	}
	if e.TTL != "" {
		def.TTL = durationOr(e.TTL, def.TTL)
	}
	if e.MaxEntries > 0 {
		def.MaxEntries = e.MaxEntries
	}
	return def
}

// GetMode returns the auth mode, "anonymous" when unset
func (a *AuthConfig) GetMode() string {
	if a.Mode == "" {
		return AuthModeAnonymous
	}
	return a.Mode
}

// GetTokenLifetime returns the lifetime of issued tokens
func (a *AuthConfig) GetTokenLifetime() time.Duration {
	return durationOr(a.TokenLifetime, DefaultTokenLifetime)
}

// GetSecret returns the token signing secret using the following priority:
// 1. Read from SecretFile if specified
// 2. Read from the THV_GIT_JWT_SECRET environment variable
//
// The secret from file will have leading/trailing whitespace trimmed.
func (a *AuthConfig) GetSecret() ([]byte, error) {
	var secret string
	if a.SecretFile != "" {
		data, err := os.ReadFile(filepath.Clean(a.SecretFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read secret from file %s: %w", a.SecretFile, err)
		}
		secret = strings.TrimSpace(string(data))
	} else {
		secret = os.Getenv(JWTSecretEnvVar)
	}

	if secret == "" {
		return nil, fmt.Errorf("no JWT secret configured: set auth.secretFile or %s environment variable", JWTSecretEnvVar)
	}
	return []byte(secret), nil
}
