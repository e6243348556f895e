package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/thv-git-api/internal/filtering"
	"github.com/stacklok/thv-git-api/internal/gitcmd"
	"github.com/stacklok/thv-git-api/internal/gitcmd/mocks"
	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/pathguard"
	"github.com/stacklok/thv-git-api/internal/repository"
)

const (
	readmeHash = "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
	srcHash    = "0f0e0d0c0b0a0f0e0d0c0b0a0f0e0d0c0b0a0f0e"
	logoHash   = "1234567890abcdef1234567890abcdef12345678"
	commitHash = "fedcba9876543210fedcba9876543210fedcba98"
)

func logRecord(hash, date, msg string) string {
	return "\x1e" + strings.Join([]string{hash, "Jane Doe", "jane@example.com", date, "", msg + "\n"}, "\x1f")
}

func logKey(rev, path string, maxCount int) string {
	return strings.Join(gitlog.Query{Rev: rev, Path: path, MaxCount: maxCount}.Args(gitlog.Delimited{}), " ")
}

type invocation struct {
	dir  string
	args string
	opts gitcmd.RunOptions
}

// scriptedRunner answers git invocations from a table keyed by repository
// directory name and joined arguments.
type scriptedRunner struct {
	mu        sync.Mutex
	responses map[string]map[string]string
	calls     []invocation
}

func (s *scriptedRunner) install(t *testing.T) *mocks.MockRunner {
	t.Helper()
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, dir string, opts gitcmd.RunOptions, args ...string) (string, error) {
			key := strings.Join(args, " ")
			s.mu.Lock()
			defer s.mu.Unlock()
			s.calls = append(s.calls, invocation{dir: dir, args: key, opts: opts})
			out, ok := s.responses[filepath.Base(dir)][key]
			if !ok {
				return "", &gitcmd.CommandError{Args: args, Dir: dir, ExitCode: 128, Err: errors.New("exit status 128")}
			}
			return out, nil
		}).AnyTimes()
	return runner
}

func (s *scriptedRunner) count(args string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.args == args {
			n++
		}
	}
	return n
}

func (s *scriptedRunner) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedRunner) find(args string) (invocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.args == args {
			return c, true
		}
	}
	return invocation{}, false
}

// stubInspector reports HEAD branches from a table keyed by directory name
type stubInspector map[string]string

func (s stubInspector) DefaultBranch(repoPath string) (string, error) {
	if b, ok := s[filepath.Base(repoPath)]; ok {
		return b, nil
	}
	return "", errors.New("no HEAD")
}

func makeRepoDirs(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.Mkdir(filepath.Join(root, n), 0o750))
	}
	return root
}

func newService(t *testing.T, root string, script *scriptedRunner, opts ...repository.Option) repository.Service {
	t.Helper()
	opts = append([]repository.Option{repository.WithInspector(stubInspector{})}, opts...)
	svc, err := repository.New(root, script.install(t), opts...)
	require.NoError(t, err)
	return svc
}

func TestNew(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	_, err := repository.New("", runner)
	assert.Error(t, err)

	_, err = repository.New(t.TempDir(), nil)
	assert.Error(t, err)

	svc, err := repository.New(t.TempDir(), runner)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestService_ValidationBeforeGit(t *testing.T) {
	t.Parallel()

	root := makeRepoDirs(t, "demo.git")
	script := &scriptedRunner{}
	svc := newService(t, root, script)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"tree by branch bad repo", func() error { _, err := svc.TreeByBranch(ctx, "../etc", "main"); return err }},
		{"tree by branch bad branch", func() error { _, err := svc.TreeByBranch(ctx, "demo", "-x"); return err }},
		{"tree by object bad id", func() error { _, err := svc.TreeByObject(ctx, "demo", "zzzzzz"); return err }},
		{"object bad repo", func() error { _, err := svc.ObjectContent(ctx, "a/b", "abcdef"); return err }},
		{"object bad id", func() error { _, err := svc.ObjectContent(ctx, "demo", "--all"); return err }},
		{"commit log bad branch", func() error { _, err := svc.CommitLog(ctx, "demo", "main..dev"); return err }},
		{"commit log bad repo", func() error { _, err := svc.CommitLog(ctx, "", "main"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.call(), pathguard.ErrInvalidInput)
		})
	}
	t.Cleanup(func() { assert.Zero(t, script.total(), "git must not run for invalid input") })
}

func TestService_RepositoryNotFound(t *testing.T) {
	t.Parallel()

	root := makeRepoDirs(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.git"), []byte("x"), 0o600))
	script := &scriptedRunner{}
	svc := newService(t, root, script)
	ctx := context.Background()

	_, err := svc.TreeByBranch(ctx, "missing", "main")
	assert.ErrorIs(t, err, repository.ErrRepositoryNotFound)

	_, err = svc.CommitLog(ctx, "file", "main")
	assert.ErrorIs(t, err, repository.ErrRepositoryNotFound)

	_, err = svc.ObjectContent(ctx, "missing", "abcdef")
	assert.ErrorIs(t, err, repository.ErrRepositoryNotFound)

	assert.Zero(t, script.total())
}

func TestService_ListRepositories(t *testing.T) {
	t.Parallel()

	root := makeRepoDirs(t, "alpha.git", "beta.git", "broken.git", "gamma.git", "notes", "bad name.git")
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha.git", "description"), []byte("  Alpha repo\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.git"), []byte("not a dir"), 0o600))

	script := &scriptedRunner{responses: map[string]map[string]string{
		"alpha.git": {logKey("master", "", 1): logRecord(readmeHash, "2024-01-10T09:00:00+00:00", "alpha")},
		"beta.git":  {logKey("main", "", 1): logRecord(srcHash, "2024-03-01T12:30:00+00:00", "beta")},
		"gamma.git": {logKey("master", "", 1): logRecord(logoHash, "2024-01-10T09:00:00+00:00", "gamma")},
	}}
	svc := newService(t, root, script, repository.WithInspector(stubInspector{"beta.git": "main"}))

	list, err := svc.ListRepositories(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(list))
	for _, md := range list {
		names = append(names, md.Name)
	}
	assert.Equal(t, []string{"beta", "alpha", "gamma"}, names)
	assert.Equal(t, "Alpha repo", list[1].Description)
	assert.Empty(t, list[0].Description)
	assert.Equal(t, gitlog.Commit{
		Hash:        "0f0e0d",
		Date:        "03/01/2024 12:30",
		Message:     "beta",
		Author:      "Jane Doe",
		AuthorEmail: "jane@example.com",
		CommittedAt: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}, list[0].LastCommit)

	calls := script.total()
	again, err := svc.ListRepositories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, list, again)
	assert.Equal(t, calls, script.total(), "second listing must be served from cache")

	svc.InvalidateRepositories()
	_, err = svc.ListRepositories(context.Background())
	require.NoError(t, err)
	assert.Greater(t, script.total(), calls)
}

func TestService_NameFilter(t *testing.T) {
	t.Parallel()

	root := makeRepoDirs(t, "team-api.git", "team-web-archive.git", "scratch.git")
	script := &scriptedRunner{responses: map[string]map[string]string{
		"team-api.git":         {logKey("master", "", 1): logRecord(readmeHash, "2024-01-10T09:00:00+00:00", "api")},
		"team-web-archive.git": {logKey("master", "", 1): logRecord(srcHash, "2024-02-10T09:00:00+00:00", "web")},
		"scratch.git":          {logKey("master", "", 1): logRecord(logoHash, "2024-03-10T09:00:00+00:00", "scratch")},
	}}
	filter, err := filtering.NewNameFilter([]string{"team-*"}, []string{"*-archive"})
	require.NoError(t, err)
	svc := newService(t, root, script, repository.WithNameFilter(filter))
	ctx := context.Background()

	list, err := svc.ListRepositories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "team-api", list[0].Name)

	calls := script.total()
	_, err = svc.TreeByBranch(ctx, "scratch", "master")
	assert.ErrorIs(t, err, repository.ErrRepositoryNotFound)
	_, err = svc.CommitLog(ctx, "team-web-archive", "master")
	assert.ErrorIs(t, err, repository.ErrRepositoryNotFound)
	assert.Equal(t, calls, script.total(), "git must not run for filtered repositories")
}

func TestService_ListRepositories_EmptyRoot(t *testing.T) {
	t.Parallel()

	svc := newService(t, makeRepoDirs(t), &scriptedRunner{})
	list, err := svc.ListRepositories(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestService_ListRepositories_MissingRoot(t *testing.T) {
	t.Parallel()

	svc := newService(t, filepath.Join(t.TempDir(), "missing"), &scriptedRunner{})
	_, err := svc.ListRepositories(context.Background())
	assert.Error(t, err)
}

func TestService_RefreshRepositories(t *testing.T) {
	t.Parallel()

	root := makeRepoDirs(t, "alpha.git")
	script := &scriptedRunner{responses: map[string]map[string]string{
		"alpha.git": {logKey("master", "", 1): logRecord(readmeHash, "2024-01-10T09:00:00+00:00", "alpha")},
	}}
	svc := newService(t, root, script)

	first, err := svc.ListRepositories(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, os.Mkdir(filepath.Join(root, "beta.git"), 0o750))
	script.mu.Lock()
	script.responses["beta.git"] = map[string]string{
		logKey("master", "", 1): logRecord(srcHash, "2024-02-10T09:00:00+00:00", "beta"),
	}
	script.mu.Unlock()

	refreshed, err := svc.RefreshRepositories(context.Background())
	require.NoError(t, err)
	require.Len(t, refreshed, 2)

	cached, err := svc.ListRepositories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refreshed, cached)
}

func TestService_TreeByBranch(t *testing.T) {
	t.Parallel()

	root := makeRepoDirs(t, "demo.git")
	listing := "100644 blob " + readmeHash + "\tREADME.md\n040000 tree " + srcHash + "\tsrc\n"
	script := &scriptedRunner{responses: map[string]map[string]string{
		"demo.git": {
			"ls-tree main":                 listing,
			logKey("main", "README.md", 1): logRecord(readmeHash, "2024-03-05T14:07:09+01:00", "docs"),
			logKey("main", "", 1):          logRecord(srcHash, "2024-03-06T10:00:00+01:00", "code"),
			"show main:README.md":          "# Demo\n",
		},
	}}
	svc := newService(t, root, script)

	tree, err := svc.TreeByBranch(context.Background(), "demo", "main")
	require.NoError(t, err)
	require.Len(t, tree.Objects, 2)
	assert.Equal(t, "README.md", tree.Objects[0].Name)
	assert.Equal(t, "blob", tree.Objects[0].FileType)
	assert.Equal(t, "a1b2c3", tree.Objects[0].LastCommit.Hash)
	assert.Equal(t, "src", tree.Objects[1].Name)
	assert.Equal(t, "0f0e0d", tree.Objects[1].LastCommit.Hash)
	require.NotNil(t, tree.ReadMe)
	assert.Equal(t, "# Demo\n", *tree.ReadMe)

	_, err = svc.TreeByBranch(context.Background(), "demo", "main")
	require.NoError(t, err)
	assert.Equal(t, 1, script.count("ls-tree main"))

	svc.Invalidate("demo")
	_, err = svc.TreeByBranch(context.Background(), "demo", "main")
	require.NoError(t, err)
	assert.Equal(t, 2, script.count("ls-tree main"))
}

func TestService_TreeByBranch_UnknownBranch(t *testing.T) {
	t.Parallel()

	svc := newService(t, makeRepoDirs(t, "demo.git"), &scriptedRunner{})
	_, err := svc.TreeByBranch(context.Background(), "demo", "nope")
	assert.ErrorIs(t, err, gitcmd.ErrCommandFailed)
}

func TestService_TreeByObject(t *testing.T) {
	t.Parallel()

	root := makeRepoDirs(t, "demo.git")
	revList := commitHash + "\n" + srcHash + " src\n" + readmeHash + " src/main.go\n"
	script := &scriptedRunner{responses: map[string]map[string]string{
		"demo.git": {
			"rev-list --objects --all":   revList,
			"ls-tree " + srcHash[:8]:     "100644 blob " + readmeHash + "\tmain.go\n",
			logKey("", "src/main.go", 1): logRecord(commitHash, "2024-03-05T14:07:09+01:00", "code"),
		},
	}}
	svc := newService(t, root, script)

	tree, err := svc.TreeByObject(context.Background(), "demo", srcHash[:8])
	require.NoError(t, err)
	require.Len(t, tree.Objects, 1)
	assert.Equal(t, "main.go", tree.Objects[0].Name)
	assert.Equal(t, "fedcba", tree.Objects[0].LastCommit.Hash)
	assert.Nil(t, tree.ReadMe)

	_, err = svc.TreeByObject(context.Background(), "demo", srcHash[:8])
	require.NoError(t, err)
	assert.Equal(t, 1, script.count("rev-list --objects --all"))
}

func TestService_TreeByObject_Unknown(t *testing.T) {
	t.Parallel()

	script := &scriptedRunner{responses: map[string]map[string]string{
		"demo.git": {"rev-list --objects --all": commitHash + "\n"},
	}}
	svc := newService(t, makeRepoDirs(t, "demo.git"), script)

	_, err := svc.TreeByObject(context.Background(), "demo", "abcdef")
	assert.ErrorIs(t, err, gitcmd.ErrNoLastElement)
}

func TestService_ObjectContent(t *testing.T) {
	t.Parallel()

	revList := commitHash + "\n" + srcHash + " src\n" + readmeHash + " src/main.go\n" + logoHash + " assets/logo.PNG\n"

	tests := []struct {
		name       string
		id         string
		want       repository.ObjectContent
		wantBinary bool
	}{
		{
			name: "text blob",
			id:   readmeHash,
			want: repository.ObjectContent{Name: "src/main.go", Content: "package main\n", Size: "13", Ext: "go"},
		},
		{
			name:       "image blob",
			id:         logoHash[:10],
			want:       repository.ObjectContent{Name: "assets/logo.PNG", Content: "iVBORw", Size: "4", Ext: "PNG"},
			wantBinary: true,
		},
		{
			name: "commit",
			id:   commitHash,
			want: repository.ObjectContent{Name: commitHash, Content: "commit fedcba\n", Size: "180", Ext: "diff"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			script := &scriptedRunner{responses: map[string]map[string]string{
				"demo.git": {
					"rev-list --objects --all": revList,
					"show -p " + tt.id:         tt.want.Content,
					"cat-file -s " + tt.id:     tt.want.Size + "\n",
				},
			}}
			svc := newService(t, makeRepoDirs(t, "demo.git"), script)

			got, err := svc.ObjectContent(context.Background(), "demo", tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)

			show, ok := script.find("show -p " + tt.id)
			require.True(t, ok)
			assert.Equal(t, tt.wantBinary, show.opts.Binary)

			_, err = svc.ObjectContent(context.Background(), "demo", tt.id)
			require.NoError(t, err)
			assert.Equal(t, 1, script.count("show -p "+tt.id))
		})
	}
}

func TestService_CommitLog(t *testing.T) {
	t.Parallel()

	script := &scriptedRunner{responses: map[string]map[string]string{
		"demo.git": {
			logKey("main", "", 0): logRecord(commitHash, "2024-03-06T10:00:00+01:00", "second") +
				logRecord(readmeHash, "2024-03-05T14:07:09+01:00", "first"),
			logKey("empty", "", 0): "",
		},
	}}
	svc := newService(t, makeRepoDirs(t, "demo.git"), script)

	commits, err := svc.CommitLog(context.Background(), "demo", "main")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "fedcba", commits[0].Hash)
	assert.Equal(t, "second", commits[0].Message)
	assert.Equal(t, "a1b2c3", commits[1].Hash)

	empty, err := svc.CommitLog(context.Background(), "demo", "empty")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.CommitLog(context.Background(), "demo", "main")
	require.NoError(t, err)
	assert.Equal(t, 1, script.count(logKey("main", "", 0)))

	svc.Invalidate("demo")
	_, err = svc.CommitLog(context.Background(), "demo", "main")
	require.NoError(t, err)
	assert.Equal(t, 2, script.count(logKey("main", "", 0)))
}

type versionRunner struct {
	gitcmd.Runner
	err error
}

func (v versionRunner) Version(context.Context) (string, error) {
	return "2.44.0", v.err
}

func TestService_CheckReadiness(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	tests := []struct {
		name    string
		root    string
		runner  gitcmd.Runner
		wantErr bool
	}{
		{name: "ready", root: t.TempDir(), runner: runner},
		{name: "git available", root: t.TempDir(), runner: versionRunner{Runner: runner}},
		{name: "git missing", root: t.TempDir(), runner: versionRunner{Runner: runner, err: errors.New("not found")}, wantErr: true},
		{name: "missing root", root: filepath.Join(t.TempDir(), "missing"), runner: runner, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, err := repository.New(tt.root, tt.runner)
			require.NoError(t, err)
			err = svc.CheckReadiness(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestExtension(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"README.md":      "md",
		"src/main.go":    "go",
		"archive.tar.gz": "gz",
		".gitignore":     "gitignore",
		"Makefile":       "diff",
		"dir.d/file":     "diff",
		"trailing.":      "diff",
		commitHash:       "diff",
	}
	for in, want := range tests {
		assert.Equal(t, want, repository.Extension(in), "name %q", in)
	}
}

func TestIsImageExtension(t *testing.T) {
	t.Parallel()

	for _, ext := range []string{"png", "jpg", "jpeg", "gif", "webp", "ico", "bmp", "PNG"} {
		assert.True(t, repository.IsImageExtension(ext), ext)
	}
	for _, ext := range []string{"svg", "go", "diff", ""} {
		assert.False(t, repository.IsImageExtension(ext), ext)
	}
}

func TestSortByLastCommit(t *testing.T) {
	t.Parallel()

	md := func(name, date string) repository.Metadata {
		return repository.Metadata{Name: name, LastCommit: gitlog.Commit{Date: date}}
	}
	list := []repository.Metadata{
		md("old", "01/02/2023 10:00"),
		md("broken", "yesterday"),
		md("zeta", "03/05/2024 14:07"),
		md("alpha", "03/05/2024 14:07"),
		md("newest", "12/31/2024 23:59"),
	}
	repository.SortByLastCommit(list)

	names := make([]string, 0, len(list))
	for _, m := range list {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"newest", "alpha", "zeta", "old", "broken"}, names)
}

func TestSortByLastCommit_MixedOffsets(t *testing.T) {
	t.Parallel()

	parsed := func(name, date string) repository.Metadata {
		commits, err := gitlog.Delimited{}.Parse(logRecord(commitHash, date, name))
		require.NoError(t, err)
		require.Len(t, commits, 1)
		return repository.Metadata{Name: name, LastCommit: commits[0]}
	}

	// 10:00 in Tokyo is 01:00 UTC, four hours before 05:00 in London.
	tokyo := parsed("tokyo", "2024-01-02T10:00:00+09:00")
	london := parsed("london", "2024-01-02T05:00:00+00:00")
	require.Equal(t, "01/02/2024 10:00", tokyo.LastCommit.Date)
	require.Equal(t, "01/02/2024 05:00", london.LastCommit.Date)

	list := []repository.Metadata{
		tokyo,
		london,
		parsed("denver", "2024-01-01T20:30:00-07:00"),
	}
	repository.SortByLastCommit(list)

	names := make([]string, 0, len(list))
	for _, m := range list {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"london", "denver", "tokyo"}, names)
}
