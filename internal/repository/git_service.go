package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/thv-git-api/internal/cache"
	"github.com/stacklok/thv-git-api/internal/filtering"
	"github.com/stacklok/thv-git-api/internal/git"
	"github.com/stacklok/thv-git-api/internal/gitcmd"
	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/gittree"
	"github.com/stacklok/thv-git-api/internal/otel"
	"github.com/stacklok/thv-git-api/internal/pathguard"
	"github.com/stacklok/thv-git-api/internal/telemetry"
)

// gitService implements the Service interface on top of the git binary
type gitService struct {
	root          string
	runner        gitcmd.Runner
	resolver      *gittree.Resolver
	inspector     git.Inspector
	filter        *filtering.NameFilter
	format        gitlog.Format
	defaultBranch string
	concurrency   int
	cachePolicy   CachePolicy
	tracer        trace.Tracer
	metrics       *telemetry.RepositoryMetrics
	logger        *slog.Logger

	repositories *cache.Cache[[]Metadata]
	logs         *cache.Cache[[]gitlog.Commit]
	branchTrees  *cache.Cache[*gittree.Tree]
	objectTrees  *cache.Cache[*gittree.Tree]
	objects      *cache.Cache[*ObjectContent]
	paths        *cache.Cache[string]
}

var _ Service = (*gitService)(nil)

// versionProber is implemented by runners that can report the git version
type versionProber interface {
	Version(ctx context.Context) (string, error)
}

// New creates a Service serving the repositories found directly below root.
func New(root string, runner gitcmd.Runner, opts ...Option) (Service, error) {
	if root == "" {
		return nil, fmt.Errorf("repository root is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("git runner is required")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}

	s := &gitService{
		root:          absRoot,
		runner:        runner,
		inspector:     git.NewInspector(),
		format:        gitlog.Delimited{},
		defaultBranch: DefaultBranch,
		concurrency:   runtime.GOMAXPROCS(0),
		cachePolicy:   DefaultCachePolicy(),
		logger:        slog.Default().With("component", "repository"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.repositories = cache.New[[]Metadata]("repositories", s.cachePolicy.Repositories)
	s.logs = cache.New[[]gitlog.Commit]("commit_logs", s.cachePolicy.CommitLogs)
	s.branchTrees = cache.New[*gittree.Tree]("branch_trees", s.cachePolicy.BranchTrees)
	s.objectTrees = cache.New[*gittree.Tree]("object_trees", s.cachePolicy.ObjectTrees)
	s.objects = cache.New[*ObjectContent]("objects", s.cachePolicy.Objects)
	s.paths = cache.New[string]("object_paths", s.cachePolicy.ObjectPaths)

	s.resolver = gittree.NewResolver(runner, s.format,
		gittree.WithLogger(s.logger),
		gittree.WithConcurrency(s.concurrency),
		gittree.WithPathFinder(s.findPath),
	)
	return s, nil
}

// CheckReadiness checks that the repository root is a readable directory and
// that git can be executed.
func (s *gitService) CheckReadiness(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("repository root is not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository root %s is not a directory", s.root)
	}

	if prober, ok := s.runner.(versionProber); ok {
		if _, err := prober.Version(ctx); err != nil {
			return fmt.Errorf("git is not available: %w", err)
		}
	}
	return nil
}

// TreeByBranch returns the root listing of branch
func (s *gitService) TreeByBranch(ctx context.Context, rawRepo, rawBranch string) (*gittree.Tree, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "repository.TreeByBranch")
	defer span.End()

	repo, err := pathguard.ValidateRepoName(rawRepo)
	if err != nil {
		return nil, err
	}
	branch, err := pathguard.ValidateBranchName(rawBranch)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrRepository.String(repo.String()), otel.AttrBranch.String(branch.String()))

	dir, err := s.repoDir(repo)
	if err != nil {
		return nil, err
	}

	tree, err := s.branchTrees.GetOrCompute(ctx, cache.TreeByBranchKey(repo, branch),
		func(ctx context.Context) (*gittree.Tree, error) {
			return s.resolver.ByBranch(ctx, dir, branch)
		})
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list branch %s of %s: %w", branch, repo, err)
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(tree.Objects)))
	return tree, nil
}

// TreeByObject returns the listing of a tree object
func (s *gitService) TreeByObject(ctx context.Context, rawRepo, rawID string) (*gittree.Tree, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "repository.TreeByObject")
	defer span.End()

	repo, id, dir, err := s.resolveObject(rawRepo, rawID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrRepository.String(repo.String()), otel.AttrObjectID.String(id.String()))

	tree, err := s.objectTrees.GetOrCompute(ctx, cache.TreeByObjectKey(repo, id),
		func(ctx context.Context) (*gittree.Tree, error) {
			return s.resolver.ByObject(ctx, dir, id)
		})
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list tree %s of %s: %w", id, repo, err)
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(tree.Objects)))
	return tree, nil
}

// ObjectContent returns the content of an object
func (s *gitService) ObjectContent(ctx context.Context, rawRepo, rawID string) (*ObjectContent, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "repository.ObjectContent")
	defer span.End()

	repo, id, dir, err := s.resolveObject(rawRepo, rawID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrRepository.String(repo.String()), otel.AttrObjectID.String(id.String()))

	content, err := s.objects.GetOrCompute(ctx, cache.ObjectKey(repo, id),
		func(ctx context.Context) (*ObjectContent, error) {
			return s.readObject(ctx, dir, id)
		})
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read object %s of %s: %w", id, repo, err)
	}
	return content, nil
}

// CommitLog returns the full history of branch
func (s *gitService) CommitLog(ctx context.Context, rawRepo, rawBranch string) ([]gitlog.Commit, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "repository.CommitLog")
	defer span.End()

	repo, err := pathguard.ValidateRepoName(rawRepo)
	if err != nil {
		return nil, err
	}
	branch, err := pathguard.ValidateBranchName(rawBranch)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		otel.AttrRepository.String(repo.String()),
		otel.AttrBranch.String(branch.String()),
		otel.AttrLogFormat.String(s.format.Name()),
	)

	dir, err := s.repoDir(repo)
	if err != nil {
		return nil, err
	}

	commits, err := s.logs.GetOrCompute(ctx, cache.CommitLogKey(repo, branch),
		func(ctx context.Context) ([]gitlog.Commit, error) {
			commits, err := gitlog.Fetch(ctx, s.runner, dir, s.format, gitlog.Query{Rev: branch.String()})
			if err != nil {
				return nil, err
			}
			if commits == nil {
				commits = []gitlog.Commit{}
			}
			return commits, nil
		})
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to read commit log of %s on %s: %w", repo, branch, err)
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(commits)))
	return commits, nil
}

// Invalidate drops the cached results of repo that depend on branch positions.
// Results keyed by object id are kept.
func (s *gitService) Invalidate(repo pathguard.RepositoryName) {
	dropped := 0
	for _, prefix := range cache.BranchKeysPrefixes(repo) {
		dropped += s.branchTrees.InvalidatePrefix(prefix)
		dropped += s.logs.InvalidatePrefix(prefix)
		dropped += s.paths.InvalidatePrefix(prefix)
	}
	s.repositories.Invalidate(cache.RepositoriesKey)
	s.logger.Debug("Invalidated repository caches", "repository", repo, "entries", dropped)
}

// InvalidateRepositories drops the cached repository list
func (s *gitService) InvalidateRepositories() {
	s.repositories.Invalidate(cache.RepositoriesKey)
}

// findPath is the cached object id to path lookup handed to the tree resolver.
// dir always comes from repoDir, so its base name carries the repository name.
func (s *gitService) findPath(ctx context.Context, dir string, id pathguard.ObjectID) (string, error) {
	repo := pathguard.RepositoryName(strings.TrimSuffix(filepath.Base(dir), pathguard.RepositorySuffix))
	return s.paths.GetOrCompute(ctx, cache.ObjectPathKey(repo, id), func(ctx context.Context) (string, error) {
		return gitcmd.FindPathForObject(ctx, s.runner, dir, id)
	})
}

func (s *gitService) resolveObject(rawRepo, rawID string) (pathguard.RepositoryName, pathguard.ObjectID, string, error) {
	repo, err := pathguard.ValidateRepoName(rawRepo)
	if err != nil {
		return "", "", "", err
	}
	id, err := pathguard.ValidateObjectID(rawID)
	if err != nil {
		return "", "", "", err
	}
	dir, err := s.repoDir(repo)
	if err != nil {
		return "", "", "", err
	}
	return repo, id, dir, nil
}

// repoDir resolves the directory of repo and checks that it exists and is
// not filtered out
func (s *gitService) repoDir(repo pathguard.RepositoryName) (string, error) {
	if ok, reason := s.filter.ShouldInclude(repo.String()); !ok {
		return "", fmt.Errorf("%w: %s (%s)", ErrRepositoryNotFound, repo, reason)
	}
	dir, err := pathguard.ResolveRepoPath(s.root, repo)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, repo)
		}
		return "", fmt.Errorf("failed to stat repository %s: %w", repo, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, repo)
	}
	return dir, nil
}
