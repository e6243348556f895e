package helpers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/onsi/gomega"
)

// GitTestHelper manages the bare repositories served by the server under test
type GitTestHelper struct {
	ctx          context.Context
	tempDir      string
	rootDir      string
	repositories []*GitTestRepository
}

// GitTestRepository is a bare repository plus the working copy used to push to it
type GitTestRepository struct {
	Name     string
	BarePath string
	WorkPath string
}

// NewGitTestHelper creates a new Git test helper
func NewGitTestHelper(ctx context.Context) *GitTestHelper {
	tempDir, err := os.MkdirTemp("", "git-api-repos-*")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	rootDir := filepath.Join(tempDir, "root")
	gomega.Expect(os.MkdirAll(rootDir, 0750)).To(gomega.Succeed())
	gomega.Expect(os.MkdirAll(filepath.Join(tempDir, "work"), 0750)).To(gomega.Succeed())

	return &GitTestHelper{
		ctx:          ctx,
		tempDir:      tempDir,
		rootDir:      rootDir,
		repositories: make([]*GitTestRepository, 0),
	}
}

// RootDir returns the directory holding the bare repositories
func (g *GitTestHelper) RootDir() string {
	return g.rootDir
}

// CreateRepository creates <name>.git below the root with main as its default
// branch, and a working copy pushing to it
func (g *GitTestHelper) CreateRepository(name, description string) *GitTestRepository {
	repo := &GitTestRepository{
		Name:     name,
		BarePath: filepath.Join(g.rootDir, name+".git"),
		WorkPath: filepath.Join(g.tempDir, "work", name),
	}

	g.runGitCommand(g.rootDir, "init", "--bare", repo.BarePath)
	g.runGitCommand(repo.BarePath, "symbolic-ref", "HEAD", "refs/heads/main")
	// git init installs a placeholder description from its templates
	descriptionPath := filepath.Join(repo.BarePath, "description")
	if description != "" {
		err := os.WriteFile(descriptionPath, []byte(description+"\n"), 0600)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	} else if err := os.Remove(descriptionPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	}

	g.runGitCommand(g.tempDir, "init", repo.WorkPath)
	g.runGitCommand(repo.WorkPath, "symbolic-ref", "HEAD", "refs/heads/main")
	g.runGitCommand(repo.WorkPath, "config", "user.name", "Test User")
	g.runGitCommand(repo.WorkPath, "config", "user.email", "test@example.com")
	g.runGitCommand(repo.WorkPath, "config", "commit.gpgsign", "false")
	g.runGitCommand(repo.WorkPath, "remote", "add", "origin", repo.BarePath)

	g.repositories = append(g.repositories, repo)
	return repo
}

// CommitFile writes content to path, commits it with the given author date and
// pushes the current branch
func (g *GitTestHelper) CommitFile(repo *GitTestRepository, path, content, message string, when time.Time) {
	filePath := filepath.Join(repo.WorkPath, filepath.FromSlash(path))
	err := os.MkdirAll(filepath.Dir(filePath), 0750)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	err = os.WriteFile(filePath, []byte(content), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	date := when.Format(time.RFC3339)
	g.runGitCommand(repo.WorkPath, "add", path)
	g.runGitCommandWithEnv(repo.WorkPath,
		[]string{"GIT_AUTHOR_DATE=" + date, "GIT_COMMITTER_DATE=" + date},
		"commit", "-m", message)
	g.runGitCommand(repo.WorkPath, "push", "origin", "HEAD")
}

// CreateBranch creates a new branch and switches to it
func (g *GitTestHelper) CreateBranch(repo *GitTestRepository, branchName string) {
	g.runGitCommand(repo.WorkPath, "checkout", "-b", branchName)
}

// SwitchBranch switches to an existing branch
func (g *GitTestHelper) SwitchBranch(repo *GitTestRepository, branchName string) {
	g.runGitCommand(repo.WorkPath, "checkout", branchName)
}

// ObjectHash returns the full id of rev:path in the bare repository
func (g *GitTestHelper) ObjectHash(repo *GitTestRepository, rev, path string) string {
	return g.runGitCommand(repo.BarePath, "rev-parse", rev+":"+path)
}

// CleanupRepositories removes all test repositories
func (g *GitTestHelper) CleanupRepositories() error {
	return os.RemoveAll(g.tempDir)
}

// runGitCommand runs a Git command in the specified directory and returns its trimmed output
func (g *GitTestHelper) runGitCommand(dir string, args ...string) string {
	return g.runGitCommandWithEnv(dir, nil, args...)
}

func (g *GitTestHelper) runGitCommandWithEnv(dir string, env []string, args ...string) string {
	cmd := exec.CommandContext(g.ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_CONFIG_NOSYSTEM=1", "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, env...)
	output, err := cmd.CombinedOutput()
	gomega.Expect(err).NotTo(gomega.HaveOccurred(),
		fmt.Sprintf("Git command failed: %s\nOutput: %s", cmd.String(), string(output)))
	return strings.TrimSpace(string(output))
}
