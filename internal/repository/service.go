// Package repository provides the business logic behind the git API: listing
// repositories, browsing trees, reading objects and commit logs, with every
// expensive result cached.
package repository

import (
	"context"
	"errors"

	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/gittree"
	"github.com/stacklok/thv-git-api/internal/pathguard"
)

var (
	// ErrRepositoryNotFound is returned when the repository directory does not exist
	ErrRepositoryNotFound = errors.New("repository not found")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service

// Service defines the repository operations served by the API. Methods taking
// raw strings validate them before any filesystem access or git invocation.
type Service interface {
	// CheckReadiness checks that the repository root and git are usable
	CheckReadiness(ctx context.Context) error

	// ListRepositories returns every repository under the root, most recently changed first
	ListRepositories(ctx context.Context) ([]Metadata, error)

	// RefreshRepositories rescans the root and replaces the cached repository list
	RefreshRepositories(ctx context.Context) ([]Metadata, error)

	// TreeByBranch returns the root listing of a branch, with its README when present
	TreeByBranch(ctx context.Context, repo, branch string) (*gittree.Tree, error)

	// TreeByObject returns the listing of a tree object
	TreeByObject(ctx context.Context, repo, id string) (*gittree.Tree, error)

	// ObjectContent returns the content of an object
	ObjectContent(ctx context.Context, repo, id string) (*ObjectContent, error)

	// CommitLog returns the full history of a branch, most recent first
	CommitLog(ctx context.Context, repo, branch string) ([]gitlog.Commit, error)

	// Invalidate drops every cached result of repo that depends on branch positions
	Invalidate(repo pathguard.RepositoryName)

	// InvalidateRepositories drops the cached repository list
	InvalidateRepositories()
}

// Metadata describes one repository in the repository list
type Metadata struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	LastCommit  gitlog.Commit `json:"lastCommit"`
}

// ObjectContent is the content of a single object
type ObjectContent struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Size    string `json:"size"`
	Ext     string `json:"ext"`
}
