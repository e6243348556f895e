package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/thv-git-api/internal/cache"
	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/otel"
	"github.com/stacklok/thv-git-api/internal/pathguard"
)

const descriptionFile = "description"

// ListRepositories returns the cached repository list, scanning the root on a miss
func (s *gitService) ListRepositories(ctx context.Context) ([]Metadata, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "repository.ListRepositories")
	defer span.End()

	list, err := s.repositories.GetOrCompute(ctx, cache.RepositoriesKey, s.scan)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(list)))
	return list, nil
}

// RefreshRepositories rescans the root and stores the result
func (s *gitService) RefreshRepositories(ctx context.Context) ([]Metadata, error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "repository.RefreshRepositories")
	defer span.End()

	list, err := s.scan(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	s.repositories.Set(cache.RepositoriesKey, list)
	return list, nil
}

type candidate struct {
	name pathguard.RepositoryName
	dir  string
}

// scan builds the repository list. Repositories whose metadata cannot be read
// are logged and left out.
func (s *gitService) scan(ctx context.Context) ([]Metadata, error) {
	candidates, err := s.candidates()
	if err != nil {
		return nil, err
	}

	results := make([]*Metadata, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			md, err := s.metadata(gctx, c)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("Skipping repository", "repository", c.name, "error", err)
				return nil
			}
			results[i] = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	list := make([]Metadata, 0, len(results))
	for _, md := range results {
		if md != nil {
			list = append(list, *md)
		}
	}
	SortByLastCommit(list)

	s.metrics.RecordRepositoriesTotal(ctx, int64(len(list)))
	s.logger.Info("Scanned repositories", "root", s.root, "count", len(list))
	return list, nil
}

// candidates returns every "<name>.git" directory below the root with a valid name
func (s *gitService) candidates() ([]candidate, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read repository root: %w", err)
	}

	var out []candidate
	for _, e := range entries {
		stem, ok := strings.CutSuffix(e.Name(), pathguard.RepositorySuffix)
		if !ok {
			continue
		}
		name, err := pathguard.ValidateRepoName(stem)
		if err != nil {
			s.logger.Debug("Ignoring directory with invalid repository name", "name", e.Name())
			continue
		}
		dir, err := s.repoDir(name)
		if err != nil {
			s.logger.Debug("Ignoring repository", "name", e.Name(), "error", err)
			continue
		}
		out = append(out, candidate{name: name, dir: dir})
	}
	return out, nil
}

func (s *gitService) metadata(ctx context.Context, c candidate) (*Metadata, error) {
	branch := s.headBranch(c.dir)
	commits, err := gitlog.Fetch(ctx, s.runner, c.dir, s.format, gitlog.Query{Rev: branch, MaxCount: 1})
	if err != nil {
		return nil, err
	}
	last, err := gitlog.First(commits)
	if err != nil {
		return nil, err
	}

	return &Metadata{
		Name:        c.name.String(),
		Description: readDescription(c.dir),
		LastCommit:  last,
	}, nil
}

// headBranch returns the branch HEAD points at, or the configured default
func (s *gitService) headBranch(dir string) string {
	if s.inspector != nil {
		branch, err := s.inspector.DefaultBranch(dir)
		if err == nil {
			if _, err := pathguard.ValidateBranchName(branch); err == nil {
				return branch
			}
		}
	}
	return s.defaultBranch
}

func readDescription(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, descriptionFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Failed to read repository description", "dir", dir, "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SortByLastCommit orders repositories by the instant of their last commit,
// most recent first. Equal instants are ordered by name. Commits without an
// instant fall back to their display date; unparseable dates sort last.
func SortByLastCommit(list []Metadata) {
	dates := make(map[string]time.Time, len(list))
	for _, md := range list {
		if !md.LastCommit.CommittedAt.IsZero() {
			dates[md.Name] = md.LastCommit.CommittedAt
			continue
		}
		t, err := gitlog.ParseDisplayDate(md.LastCommit.Date)
		if err == nil {
			dates[md.Name] = t
		}
	}
	slices.SortStableFunc(list, func(a, b Metadata) int {
		if c := dates[b.Name].Compare(dates[a.Name]); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}
