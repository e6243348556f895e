package refresh

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/thv-git-api/internal/repository"
	"github.com/stacklok/thv-git-api/internal/telemetry"
)

const (
	// DefaultInterval is the base interval between two repository scans
	DefaultInterval = 5 * time.Minute
	// DefaultMaxRetries is the number of attempts of one scan before giving up until the next tick
	DefaultMaxRetries = 5
)

// Refresher rescans repositories and replaces the cached list
type Refresher interface {
	RefreshRepositories(ctx context.Context) ([]repository.Metadata, error)
}

// Coordinator manages the background refresh of the repository list
type Coordinator interface {
	// Start performs an initial refresh and then refreshes on every tick.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop stops the refresh loop and waits for it to return
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	refresher  Refresher
	interval   time.Duration
	jitter     time.Duration
	maxRetries uint
	backoff    func() backoff.BackOff
	metrics    *telemetry.RefreshMetrics

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// CoordinatorOption is a function that configures the coordinator
type CoordinatorOption func(*defaultCoordinator)

// WithInterval sets the base refresh interval
func WithInterval(interval time.Duration) CoordinatorOption {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithJitter sets the maximum random offset applied to every interval.
// Zero disables jitter.
func WithJitter(jitter time.Duration) CoordinatorOption {
	return func(c *defaultCoordinator) {
		if jitter >= 0 {
			c.jitter = jitter
		}
	}
}

// WithMaxRetries sets the number of attempts of one refresh
func WithMaxRetries(n uint) CoordinatorOption {
	return func(c *defaultCoordinator) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBackOff sets the retry policy factory, called once per refresh
func WithBackOff(factory func() backoff.BackOff) CoordinatorOption {
	return func(c *defaultCoordinator) {
		if factory != nil {
			c.backoff = factory
		}
	}
}

// WithRefreshMetrics sets the refresh metrics for the coordinator
func WithRefreshMetrics(metrics *telemetry.RefreshMetrics) CoordinatorOption {
	return func(c *defaultCoordinator) {
		c.metrics = metrics
	}
}

// NewCoordinator creates a new coordinator
func NewCoordinator(refresher Refresher, opts ...CoordinatorOption) Coordinator {
	c := &defaultCoordinator{
		refresher:  refresher,
		interval:   DefaultInterval,
		maxRetries: DefaultMaxRetries,
		backoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	c.jitter = c.interval / 10

	for _, opt := range opts {
		opt(c)
	}
	if c.jitter >= c.interval {
		c.jitter = c.interval / 2
	}

	return c
}

// nextInterval returns the base interval with a random offset in [-jitter, +jitter)
func (c *defaultCoordinator) nextInterval() time.Duration {
	if c.jitter <= 0 {
		return c.interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*c.jitter))) - c.jitter
	return c.interval + offset
}

// Start begins the background refresh loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancelFunc = cancel
	c.done = done
	c.mu.Unlock()

	defer func() {
		cancel()
		close(done)
		slog.Info("Repository refresh coordinator shutting down")
	}()

	interval := c.nextInterval()
	slog.Info("Starting repository refresh coordinator",
		"base_interval", c.interval,
		"actual_interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.refresh(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.refresh(coordCtx)
			ticker.Reset(c.nextInterval())
		case <-coordCtx.Done():
			slog.Info("Repository refresh coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping repository refresh coordinator")
		cancel()
		<-done
	}
	return nil
}

// refresh rescans the repositories, retrying failures with backoff
func (c *defaultCoordinator) refresh(ctx context.Context) {
	start := time.Now()

	list, err := backoff.Retry(ctx, func() ([]repository.Metadata, error) {
		return c.refresher.RefreshRepositories(ctx)
	},
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(c.maxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Repository refresh failed, retrying", "error", err, "retry_in", next)
		}),
	)

	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Repository refresh failed", "error", err, "duration", duration)
		c.metrics.RecordRefreshDuration(ctx, duration, false)
		return
	}

	slog.Debug("Repository refresh completed", "repository_count", len(list), "duration", duration)
	c.metrics.RecordRefreshDuration(ctx, duration, true)
}
