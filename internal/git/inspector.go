// Package git reads repository metadata straight from the on-disk object
// store with go-git, for lookups that do not need a git subprocess.
package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrNoDefaultBranch is returned when HEAD does not point at a branch
var ErrNoDefaultBranch = errors.New("repository has no default branch")

// Inspector defines the repository metadata lookups
type Inspector interface {
	// DefaultBranch returns the short name of the branch HEAD points at.
	DefaultBranch(repoPath string) (string, error)
}

// defaultInspector implements Inspector using go-git
type defaultInspector struct{}

// NewInspector creates a go-git backed Inspector
func NewInspector() Inspector {
	return &defaultInspector{}
}

// DefaultBranch reads the HEAD symbolic reference. The branch does not need
// to have commits yet.
func (*defaultInspector) DefaultBranch(repoPath string) (string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}

	ref, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD reference: %w", err)
	}

	if ref.Type() != plumbing.SymbolicReference || !ref.Target().IsBranch() {
		return "", ErrNoDefaultBranch
	}
	return ref.Target().Short(), nil
}
