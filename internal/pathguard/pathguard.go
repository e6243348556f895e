// Package pathguard validates the untrusted repository names, branch names and
// object identifiers that arrive on the HTTP API before any of them are handed
// to git or joined onto a filesystem path.
package pathguard

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	maxRepoNameLength   = 100
	maxBranchNameLength = 250

	// RepositorySuffix is appended to a repository name to build its directory name.
	RepositorySuffix = ".git"
)

var (
	// ErrInvalidInput is returned when a user supplied value fails validation
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathResolution is returned when a repository path cannot be resolved
	ErrPathResolution = errors.New("path resolution failed")
)

var (
	repoNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	branchNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)
	objectIDPattern   = regexp.MustCompile(`^[a-fA-F0-9]{6,40}$`)
)

// RepositoryName is a repository name that passed ValidateRepoName.
type RepositoryName string

// BranchName is a branch name that passed ValidateBranchName.
type BranchName string

// ObjectID is a git object identifier that passed ValidateObjectID.
type ObjectID string

// String returns the repository name.
func (n RepositoryName) String() string { return string(n) }

// String returns the branch name.
func (b BranchName) String() string { return string(b) }

// String returns the object identifier.
func (o ObjectID) String() string { return string(o) }

// ValidateRepoName validates a repository name.
//
// Accepted names match [A-Za-z0-9._-]+, are at most 100 characters long and
// never contain "..", "/" or "\". Valid names are returned unchanged.
func ValidateRepoName(name string) (RepositoryName, error) {
	if name == "" {
		return "", fmt.Errorf("%w: repository name cannot be empty", ErrInvalidInput)
	}
	if !repoNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: repository name contains invalid characters", ErrInvalidInput)
	}
	if len(name) > maxRepoNameLength {
		return "", fmt.Errorf("%w: repository name exceeds maximum length of %d characters",
			ErrInvalidInput, maxRepoNameLength)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid character sequence in repository name", ErrInvalidInput)
	}
	return RepositoryName(name), nil
}

// ValidateBranchName validates a branch name.
//
// Accepted names match [A-Za-z0-9._/-]+, are at most 250 characters long, do not
// start with "-" (which git would read as an option) and contain neither ".."
// nor "//".
func ValidateBranchName(name string) (BranchName, error) {
	if name == "" {
		return "", fmt.Errorf("%w: branch name cannot be empty", ErrInvalidInput)
	}
	if !branchNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: branch name contains invalid characters", ErrInvalidInput)
	}
	if len(name) > maxBranchNameLength {
		return "", fmt.Errorf("%w: branch name exceeds maximum length of %d characters",
			ErrInvalidInput, maxBranchNameLength)
	}
	if strings.HasPrefix(name, "-") {
		return "", fmt.Errorf("%w: branch name cannot start with '-'", ErrInvalidInput)
	}
	if strings.Contains(name, "..") || strings.Contains(name, "//") {
		return "", fmt.Errorf("%w: invalid branch name format", ErrInvalidInput)
	}
	return BranchName(name), nil
}

// ValidateObjectID validates an abbreviated or full hexadecimal object id (6 to 40 characters).
func ValidateObjectID(id string) (ObjectID, error) {
	if id == "" {
		return "", fmt.Errorf("%w: object id cannot be empty", ErrInvalidInput)
	}
	if !objectIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: invalid object id format", ErrInvalidInput)
	}
	return ObjectID(id), nil
}

// ResolveRepoPath returns the absolute directory of a repository below root.
//
// The returned path is always lexically contained in root. When both root and
// the repository exist on disk, symlinks are evaluated and the canonical path
// must be contained in the canonical root as well. A repository that does not
// exist yet is checked lexically only.
func ResolveRepoPath(root string, name RepositoryName) (string, error) {
	if _, err := ValidateRepoName(string(name)); err != nil {
		return "", err
	}
	if root == "" {
		return "", fmt.Errorf("%w: repository root is not configured", ErrPathResolution)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPathResolution, err)
	}
	normalizedRoot := NormalizePath(absRoot)

	// Build the candidate without filepath.Join so that normalization happens
	// in exactly one place.
	candidate := NormalizePath(absRoot + string(filepath.Separator) + string(name) + RepositorySuffix)
	if !IsWithin(normalizedRoot, candidate) {
		return "", fmt.Errorf("%w: repository path escapes the repository root", ErrInvalidInput)
	}

	canonicalRoot, rootErr := filepath.EvalSymlinks(normalizedRoot)
	canonicalRepo, repoErr := filepath.EvalSymlinks(candidate)
	if rootErr == nil && repoErr == nil && !IsWithin(canonicalRoot, canonicalRepo) {
		return "", fmt.Errorf("%w: repository path escapes the repository root", ErrInvalidInput)
	}

	return candidate, nil
}

// NormalizePath resolves "." and ".." segments and duplicate separators
// lexically, without touching the filesystem.
func NormalizePath(p string) string {
	return filepath.Clean(p)
}

// IsWithin reports whether target lies strictly below root. Both paths are
// expected to be normalized. The comparison is segment aware, so "/srv/repos"
// does not contain "/srv/repos-old".
func IsWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != "." && filepath.IsLocal(rel)
}
