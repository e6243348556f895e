// Package gitcmd runs the git binary as a subprocess with an explicit working
// directory, argument vector, timeout and a bound on concurrent processes.
package gitcmd

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks -source=runner.go Runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/stacklok/thv-git-api/internal/otel"
	"github.com/stacklok/thv-git-api/internal/telemetry"
)

const (
	// DefaultBinary is the git executable looked up on PATH
	DefaultBinary = "git"
	// DefaultTimeout bounds a single git invocation
	DefaultTimeout = 30 * time.Second

	waitDelay = 2 * time.Second
)

// RunOptions controls how the output of a single invocation is returned.
type RunOptions struct {
	// Binary returns stdout base64 encoded (standard alphabet, no padding)
	// instead of validating it as UTF-8 text.
	Binary bool
}

// Runner executes git subcommands inside a repository directory.
type Runner interface {
	// Run executes git with args in dir and returns its stdout.
	Run(ctx context.Context, dir string, opts RunOptions, args ...string) (string, error)
}

// ExecRunner is a Runner backed by os/exec.
type ExecRunner struct {
	binary  string
	timeout time.Duration
	sem     *semaphore.Weighted
	env     []string
	metrics *telemetry.GitMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures an ExecRunner
type Option func(*ExecRunner)

// WithBinary sets the git executable. Empty values are ignored.
func WithBinary(binary string) Option {
	return func(r *ExecRunner) {
		if binary != "" {
			r.binary = binary
		}
	}
}

// WithTimeout sets the per invocation timeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(r *ExecRunner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithMaxConcurrent bounds the number of git processes running at once.
// Non-positive values are ignored.
func WithMaxConcurrent(n int) Option {
	return func(r *ExecRunner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *telemetry.GitMetrics) Option {
	return func(r *ExecRunner) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for per command spans
func WithTracer(tracer trace.Tracer) Option {
	return func(r *ExecRunner) {
		r.tracer = tracer
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *ExecRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewExecRunner creates an ExecRunner. Without options it runs "git" from
// PATH with a 30 second timeout and at most 4*GOMAXPROCS processes at once.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		binary:  DefaultBinary,
		timeout: DefaultTimeout,
		sem:     semaphore.NewWeighted(int64(4 * runtime.GOMAXPROCS(0))),
		env: []string{
			"GIT_TERMINAL_PROMPT=0",
			"GIT_CONFIG_NOSYSTEM=1",
			"LC_ALL=C",
		},
		logger: slog.Default().With("component", "gitcmd"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes git with args in dir. The process working directory of the
// server is never changed; dir is only applied to the child.
func (r *ExecRunner) Run(ctx context.Context, dir string, opts RunOptions, args ...string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: working directory is required", ErrCommandFailed)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("%w: no subcommand given", ErrCommandFailed)
	}
	subcommand := args[0]

	ctx, span := otel.StartSpan(ctx, r.tracer, "git."+subcommand,
		trace.WithAttributes(otel.AttrGitSubcommand.String(subcommand)),
	)
	defer span.End()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		cmdErr := &CommandError{Args: args, Dir: dir, ExitCode: -1, Err: err}
		otel.RecordError(span, cmdErr)
		return "", cmdErr
	}
	defer r.sem.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// #nosec G204 -- binary comes from configuration and args are never passed to a shell
	cmd := exec.CommandContext(runCtx, r.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	r.metrics.RecordCommand(ctx, subcommand, duration, err == nil)

	if err != nil {
		cmdErr := &CommandError{
			Args:     args,
			Dir:      dir,
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		r.logger.DebugContext(ctx, "git command failed",
			"args", args,
			"dir", dir,
			"exit_code", cmdErr.ExitCode,
			"timed_out", cmdErr.TimedOut,
			"stderr", cmdErr.Stderr,
			"duration", duration,
		)
		otel.RecordError(span, cmdErr)
		return "", cmdErr
	}

	out := stdout.Bytes()
	if opts.Binary {
		return base64.RawStdEncoding.EncodeToString(out), nil
	}
	if !utf8.Valid(out) {
		err := fmt.Errorf("%w: git %s", ErrInvalidEncoding, subcommand)
		otel.RecordError(span, err)
		return "", err
	}
	return string(out), nil
}

// Version runs "git --version" and returns the numeric version, for example "2.44.0".
func (r *ExecRunner) Version(ctx context.Context) (string, error) {
	out, err := r.Run(ctx, os.TempDir(), RunOptions{}, "--version")
	if err != nil {
		return "", err
	}
	return ParseVersion(out)
}

// ParseVersion extracts the dotted numeric version from "git --version" output.
// Vendor suffixes such as "(Apple Git-146)" or ".windows.1" are dropped.
func ParseVersion(out string) (string, error) {
	s := strings.TrimSpace(out)
	if idx := strings.Index(s, "git version"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("git version"):])
	}
	start := strings.IndexAny(s, "0123456789")
	if start < 0 {
		return "", fmt.Errorf("%w: unrecognized version output %q", ErrNoLastElement, out)
	}
	s = s[start:]
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	parts := strings.Split(strings.Trim(s[:end], "."), ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: unrecognized version output %q", ErrNoLastElement, out)
	}
	return strings.Join(parts, "."), nil
}
