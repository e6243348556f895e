// Package gittest builds bare repositories on disk for tests, using go-git so
// that fixtures do not depend on the git binary.
package gittest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// DefaultBranch is the branch HEAD points at when RepoConfig.Branch is empty
const DefaultBranch = "master"

// Commit describes one commit of a fixture repository
type Commit struct {
	Files   map[string]string // Map of file path to content
	Message string
	Author  *object.Signature // Uses DefaultAuthor at When if nil
	When    time.Time
}

// RepoConfig contains configuration for creating a fixture repository
type RepoConfig struct {
	Branch      string
	Description string
	// ExtraBranches are created pointing at the last commit
	ExtraBranches []string
	Commits       []Commit
}

// Repo is a fixture repository
type Repo struct {
	Path    string
	Commits []plumbing.Hash
}

// DefaultAuthor returns the author used when a Commit has none
func DefaultAuthor(when time.Time) *object.Signature {
	return &object.Signature{
		Name:  "Test Author",
		Email: "test@example.com",
		When:  when,
	}
}

// CreateBareRepo creates root/<name>.git as a bare repository holding the
// configured commits.
func CreateBareRepo(t testing.TB, root, name string, config RepoConfig) *Repo {
	t.Helper()

	path := filepath.Join(root, name+".git")
	if err := os.MkdirAll(path, 0o750); err != nil {
		t.Fatalf("Failed to create repository directory: %v", err)
	}

	storage := filesystem.NewStorage(osfs.New(path), cache.NewObjectLRUDefault())
	workTree := memfs.New()
	repo, err := git.Init(storage, workTree)
	if err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}

	// The in-memory work tree makes go-git record a core.worktree that the
	// git binary would try to enter; the result must be a plain bare repo.
	cfg, err := repo.Config()
	if err != nil {
		t.Fatalf("Failed to read repository config: %v", err)
	}
	cfg.Core.IsBare = true
	cfg.Core.Worktree = ""
	if err := repo.SetConfig(cfg); err != nil {
		t.Fatalf("Failed to write repository config: %v", err)
	}

	branch := config.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := repo.Storer.SetReference(head); err != nil {
		t.Fatalf("Failed to point HEAD at %s: %v", branch, err)
	}

	if config.Description != "" {
		if err := os.WriteFile(filepath.Join(path, "description"), []byte(config.Description), 0o600); err != nil {
			t.Fatalf("Failed to write description: %v", err)
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}

	fixture := &Repo{Path: path}
	for i, c := range config.Commits {
		for file, content := range c.Files {
			if err := util.WriteFile(workTree, file, []byte(content), 0o644); err != nil {
				t.Fatalf("Failed to write file %s: %v", file, err)
			}
			if _, err := wt.Add(file); err != nil {
				t.Fatalf("Failed to add file %s: %v", file, err)
			}
		}

		author := c.Author
		if author == nil {
			author = DefaultAuthor(c.When)
		}
		msg := c.Message
		if msg == "" {
			msg = "commit"
		}
		hash, err := wt.Commit(msg, &git.CommitOptions{Author: author, AllowEmptyCommits: true})
		if err != nil {
			t.Fatalf("Failed to create commit %d: %v", i, err)
		}
		fixture.Commits = append(fixture.Commits, hash)
	}

	if len(fixture.Commits) > 0 {
		last := fixture.Commits[len(fixture.Commits)-1]
		for _, b := range config.ExtraBranches {
			ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(b), last)
			if err := repo.Storer.SetReference(ref); err != nil {
				t.Fatalf("Failed to create branch %s: %v", b, err)
			}
		}
	}

	return fixture
}

// EntryHash returns the object id of the blob or tree at path in the given commit
func (r *Repo) EntryHash(t testing.TB, commit plumbing.Hash, path string) string {
	t.Helper()

	repo, err := git.PlainOpen(r.Path)
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	c, err := repo.CommitObject(commit)
	if err != nil {
		t.Fatalf("Failed to read commit %s: %v", commit, err)
	}
	tree, err := c.Tree()
	if err != nil {
		t.Fatalf("Failed to read tree of %s: %v", commit, err)
	}
	entry, err := tree.FindEntry(path)
	if err != nil {
		t.Fatalf("Failed to find %s: %v", path, err)
	}
	return entry.Hash.String()
}

// Head returns the last commit of the fixture
func (r *Repo) Head(t testing.TB) plumbing.Hash {
	t.Helper()
	if len(r.Commits) == 0 {
		t.Fatal("fixture has no commits")
	}
	return r.Commits[len(r.Commits)-1]
}
