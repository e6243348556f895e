package refresh

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stacklok/thv-git-api/internal/pathguard"
)

// DefaultDebounce is the quiet period after the last ref change before caches are invalidated
const DefaultDebounce = 500 * time.Millisecond

// Invalidator drops cached repository data
type Invalidator interface {
	Invalidate(repo pathguard.RepositoryName)
	InvalidateRepositories()
}

// Watcher invalidates caches when repositories change on disk
type Watcher struct {
	root        string
	invalidator Invalidator
	delay       time.Duration

	mu         sync.Mutex
	fsw        *fsnotify.Watcher
	debouncers map[pathguard.RepositoryName]*Debouncer
	listing    *Debouncer
	done       chan struct{}
	stopped    bool
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before invalidating
func WithDebounce(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		if delay > 0 {
			w.delay = delay
		}
	}
}

// NewWatcher creates a Watcher for the repositories below root
func NewWatcher(root string, invalidator Invalidator, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:        filepath.Clean(root),
		invalidator: invalidator,
		delay:       DefaultDebounce,
		debouncers:  make(map[pathguard.RepositoryName]*Debouncer),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.listing = NewDebouncer(w.delay, func() {
		slog.Debug("Repository root changed, invalidating repository list")
		w.invalidator.InvalidateRepositories()
	})
	return w
}

// Start adds the watches and processes events until ctx is cancelled or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(w.root); err != nil {
		return errors.Join(fmt.Errorf("failed to watch %s: %w", w.root, err), fsw.Close())
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to read repository root: %w", err), fsw.Close())
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchRepository(fsw, filepath.Join(w.root, e.Name()))
		}
	}

	done := make(chan struct{})
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fsw.Close()
	}
	w.fsw = fsw
	w.done = done
	w.mu.Unlock()

	slog.Info("Watching repositories for changes", "root", w.root)
	defer close(done)
	w.loop(ctx, fsw)
	return nil
}

// Stop closes the watcher and waits for the event loop to return. A Start
// that has not reached its event loop yet returns without watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	fsw, done := w.fsw, w.done
	w.fsw = nil
	for _, d := range w.debouncers {
		d.Stop()
	}
	w.listing.Stop()
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	<-done
	return err
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			if err := fsw.Close(); err != nil {
				slog.Debug("Failed to close file watcher", "error", err)
			}
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if shouldIgnore(ev.Name) {
		return
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || !filepath.IsLocal(rel) {
		return
	}
	slog.Debug("File watcher event", "op", ev.Op.String(), "path", ev.Name)

	segments := strings.Split(filepath.ToSlash(rel), "/")
	if len(segments) == 1 {
		// A repository directory appeared or went away
		if ev.Has(fsnotify.Create) {
			w.watchRepository(fsw, ev.Name)
		}
		w.listing.Trigger()
		return
	}

	repo, ok := RepositoryFromDir(segments[0])
	if !ok {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addWatch(fsw, ev.Name)
		}
	}
	if isRefPath(segments[1:]) {
		w.trigger(repo)
	}
}

// trigger schedules invalidation of one repository
func (w *Watcher) trigger(repo pathguard.RepositoryName) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.debouncers[repo]
	if !ok {
		d = NewDebouncer(w.delay, func() {
			slog.Debug("Repository refs changed, invalidating caches", "repository", repo)
			w.invalidator.Invalidate(repo)
		})
		w.debouncers[repo] = d
	}
	d.Trigger()
}

// watchRepository watches a repository directory and every directory below refs/heads
func (w *Watcher) watchRepository(fsw *fsnotify.Watcher, dir string) {
	if _, ok := RepositoryFromDir(filepath.Base(dir)); !ok {
		return
	}
	w.addWatch(fsw, dir)

	heads := filepath.Join(dir, "refs", "heads")
	w.addWatch(fsw, filepath.Join(dir, "refs"))
	err := filepath.WalkDir(heads, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			w.addWatch(fsw, path)
		}
		return nil
	})
	if err != nil {
		slog.Debug("Failed to walk refs", "dir", heads, "error", err)
	}
}

func (*Watcher) addWatch(fsw *fsnotify.Watcher, path string) {
	if err := fsw.Add(path); err != nil {
		slog.Debug("Failed to add path to file watcher", "path", path, "error", err)
		return
	}
	slog.Debug("Added path to file watcher", "path", path)
}

// RepositoryFromDir returns the repository name of a "<name>.git" directory name
func RepositoryFromDir(dirName string) (pathguard.RepositoryName, bool) {
	stem, ok := strings.CutSuffix(dirName, pathguard.RepositorySuffix)
	if !ok {
		return "", false
	}
	name, err := pathguard.ValidateRepoName(stem)
	if err != nil {
		return "", false
	}
	return name, true
}

// isRefPath reports whether a path inside a repository holds branch positions
func isRefPath(segments []string) bool {
	switch {
	case len(segments) == 1:
		return segments[0] == "packed-refs" || segments[0] == "HEAD"
	case len(segments) >= 2 && segments[0] == "refs":
		return segments[1] == "heads"
	}
	return false
}

func shouldIgnore(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".lock" || ext == ".ipc"
}
