package gittree

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/thv-git-api/internal/gitcmd"
	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/pathguard"
)

// PathFinder maps an object id to the repository path it is reachable at
type PathFinder func(ctx context.Context, dir string, id pathguard.ObjectID) (string, error)

// Resolver turns ls-tree listings into Trees.
type Resolver struct {
	runner      gitcmd.Runner
	format      gitlog.Format
	findPath    PathFinder
	concurrency int
	logger      *slog.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for skipped entries
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConcurrency bounds the number of commit lookups in flight per listing
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithPathFinder replaces the object id to path lookup used by ByObject
func WithPathFinder(finder PathFinder) ResolverOption {
	return func(r *Resolver) {
		if finder != nil {
			r.findPath = finder
		}
	}
}

// NewResolver creates a Resolver that reads logs in the given format
func NewResolver(runner gitcmd.Runner, format gitlog.Format, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		runner:      runner,
		format:      format,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      slog.Default().With("component", "gittree"),
	}
	r.findPath = func(ctx context.Context, dir string, id pathguard.ObjectID) (string, error) {
		return gitcmd.FindPathForObject(ctx, r.runner, dir, id)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ByBranch lists the root of branch and attaches README.md when present.
func (r *Resolver) ByBranch(ctx context.Context, dir string, branch pathguard.BranchName) (*Tree, error) {
	listing, err := r.runner.Run(ctx, dir, gitcmd.RunOptions{}, "ls-tree", branch.String())
	if err != nil {
		return nil, err
	}

	raw, errs := ParseListing(listing)
	r.logSkipped(ctx, dir, errs)

	objects, err := r.resolveEntries(ctx, dir, branch.String(), raw, nil)
	if err != nil {
		return nil, err
	}

	tree := &Tree{Objects: objects}
	if hasReadme(raw) {
		readme, err := r.runner.Run(ctx, dir, gitcmd.RunOptions{}, "show", branch.String()+":"+ReadmeName)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to read README", "dir", dir, "branch", branch, "error", err)
		} else {
			tree.ReadMe = &readme
		}
	}
	return tree, nil
}

// ByObject lists the tree object id. Commit lookups use the path at which the
// tree is reachable, so nested directories report their own history.
func (r *Resolver) ByObject(ctx context.Context, dir string, id pathguard.ObjectID) (*Tree, error) {
	parentPath, err := r.findPath(ctx, dir, id)
	if err != nil {
		return nil, err
	}

	listing, err := r.runner.Run(ctx, dir, gitcmd.RunOptions{}, "ls-tree", id.String())
	if err != nil {
		return nil, err
	}

	objects, err := r.Resolve(ctx, dir, "", listing, &parentPath)
	if err != nil {
		return nil, err
	}
	return &Tree{Objects: objects}, nil
}

// Resolve parses listing and looks up the last commit of every entry on rev
// (HEAD when empty). With a parent path the lookup path of an entry is
// parentPath + "/" + name. Malformed lines and entries whose lookup fails are
// logged and skipped; the result keeps listing order.
func (r *Resolver) Resolve(ctx context.Context, dir, rev, listing string, parentPath *string) ([]TreeEntry, error) {
	raw, errs := ParseListing(listing)
	r.logSkipped(ctx, dir, errs)
	return r.resolveEntries(ctx, dir, rev, raw, parentPath)
}

func (r *Resolver) resolveEntries(
	ctx context.Context, dir, rev string, raw []RawEntry, parentPath *string,
) ([]TreeEntry, error) {
	resolved := make([]*TreeEntry, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, entry := range raw {
		g.Go(func() error {
			commit, err := r.lastCommit(gctx, dir, rev, entry, parentPath)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.logger.WarnContext(ctx, "Skipping tree entry",
					"dir", dir, "name", entry.Name, "type", entry.Type, "error", err)
				return nil
			}
			resolved[i] = &TreeEntry{
				Name:       entry.Name,
				FileType:   entry.Type,
				ObjectHash: entry.Hash,
				LastCommit: commit,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]TreeEntry, 0, len(raw))
	for _, e := range resolved {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func (r *Resolver) lastCommit(
	ctx context.Context, dir, rev string, entry RawEntry, parentPath *string,
) (gitlog.Commit, error) {
	query := gitlog.Query{Rev: rev, MaxCount: 1}
	if entry.Type != TypeTree {
		query.Path = LookupPath(entry.Name, parentPath)
	}
	commits, err := gitlog.Fetch(ctx, r.runner, dir, r.format, query)
	if err != nil {
		return gitlog.Commit{}, err
	}
	return gitlog.First(commits)
}

func (r *Resolver) logSkipped(ctx context.Context, dir string, errs []error) {
	for _, err := range errs {
		r.logger.WarnContext(ctx, "Skipping malformed tree line", "dir", dir, "error", err)
	}
}

// LookupPath returns the repository path of name inside parentPath.
func LookupPath(name string, parentPath *string) string {
	if parentPath == nil || *parentPath == "" {
		return name
	}
	return *parentPath + "/" + name
}

func hasReadme(entries []RawEntry) bool {
	for _, e := range entries {
		if e.Name == ReadmeName {
			return true
		}
	}
	return false
}
