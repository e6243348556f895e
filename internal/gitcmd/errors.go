package gitcmd

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCommandFailed is returned when git could not be started or exited with a non-zero status
	ErrCommandFailed = errors.New("git command failed")
	// ErrTimeout is returned when git did not finish within the configured timeout
	ErrTimeout = errors.New("git command timed out")
	// ErrInvalidEncoding is returned when text output from git is not valid UTF-8
	ErrInvalidEncoding = errors.New("git output is not valid UTF-8")
	// ErrNoLastElement is returned when git output holds no element to pick
	ErrNoLastElement = errors.New("no matching element in git output")
)

// CommandError describes a failed git invocation. Stderr is kept for server
// side logs only and must never be sent back to API clients.
type CommandError struct {
	Args     []string
	Dir      string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

// Error implements the error interface
func (e *CommandError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "git %s", e.subcommand())
	if e.TimedOut {
		b.WriteString(" timed out")
	} else {
		b.WriteString(" failed")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

// Unwrap exposes ErrCommandFailed, ErrTimeout when the process was killed on
// timeout, and the underlying exec error.
func (e *CommandError) Unwrap() []error {
	errs := []error{ErrCommandFailed}
	if e.TimedOut {
		errs = append(errs, ErrTimeout)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *CommandError) subcommand() string {
	if len(e.Args) == 0 {
		return ""
	}
	return e.Args[0]
}
