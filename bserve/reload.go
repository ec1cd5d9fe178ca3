package bserve

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/advdv/bssr"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultReloadDebounce is how long the reloader waits for more changes before rebuilding.
const DefaultReloadDebounce = 100 * time.Millisecond

// Reloader rebuilds the middleware stack whenever files below the watched paths change. Directories
// are watched recursively. A failed rebuild is logged and keeps the current stack in place.
type Reloader struct {
	stacks   *bssr.Stacks
	paths    []string
	debounce time.Duration
	logs     *zap.Logger
	metrics  *Metrics

	watcher *fsnotify.Watcher
	files   map[string]bool
	dirs    []string
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReloader inits a reloader for stacks. It does nothing until [Reloader.Start] is called.
func NewReloader(stacks *bssr.Stacks, paths []string, logs *zap.Logger, metrics *Metrics) *Reloader {
	return &Reloader{
		stacks:   stacks,
		paths:    paths,
		debounce: DefaultReloadDebounce,
		logs:     logs.Named("reload"),
		metrics:  metrics,
		files:    map[string]bool{},
	}
}

// Start adds the watched paths and starts rebuilding on changes.
func (rl *Reloader) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}

	rl.watcher = watcher

	for _, p := range rl.paths {
		if err := rl.add(filepath.Clean(p)); err != nil {
			_ = watcher.Close()
			rl.watcher = nil

			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	rl.cancel = cancel

	rl.wg.Add(1)

	go func() {
		defer rl.wg.Done()
		rl.run(ctx)
	}()

	rl.logs.Info("watching for changes", zap.Strings("paths", rl.paths))

	return nil
}

// Stop stops watching and waits for a running rebuild to finish.
func (rl *Reloader) Stop() error {
	if rl.watcher == nil {
		return nil
	}

	rl.cancel()
	err := rl.watcher.Close()
	rl.wg.Wait()

	return errors.Wrap(err, "failed to close file watcher")
}

// add watches a directory tree, or the directory that contains a file so that atomic replacements
// of the file are noticed too.
func (rl *Reloader) add(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat watched path %q", path)
	}

	if !fi.IsDir() {
		rl.files[path] = true
		return errors.Wrapf(rl.watcher.Add(filepath.Dir(path)), "failed to watch %q", path)
	}

	rl.dirs = append(rl.dirs, path)

	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		return errors.Wrapf(rl.watcher.Add(p), "failed to watch %q", p)
	})
}

func (rl *Reloader) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}

	name := filepath.Clean(ev.Name)
	if rl.files[name] {
		return true
	}

	dir := filepath.Dir(name)
	for _, root := range rl.dirs {
		if rel, err := filepath.Rel(root, dir); err == nil && (rel == "." || filepath.IsLocal(rel)) {
			return true
		}
	}

	return false
}

func (rl *Reloader) run(ctx context.Context) {
	timer := time.NewTimer(rl.debounce)
	timer.Stop()

	for {
		select {
		case ev, ok := <-rl.watcher.Events:
			if !ok {
				return
			}

			if !rl.relevant(ev) {
				continue
			}

			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := rl.add(ev.Name); err != nil {
						rl.logs.Warn("failed to watch new directory", zap.Error(err))
					}
				}
			}

			timer.Reset(rl.debounce)
		case err, ok := <-rl.watcher.Errors:
			if !ok {
				return
			}

			rl.logs.Warn("file watcher error", zap.Error(err))
		case <-timer.C:
			rl.reload(ctx)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (rl *Reloader) reload(ctx context.Context) {
	_, err := rl.stacks.Build(ctx)
	rl.metrics.observeBuild(rl.stacks.Generation(), err)

	if err != nil {
		rl.logs.Error("failed to rebuild stack, keeping the current one", zap.Error(err))
		return
	}

	rl.logs.Info("reloaded stack", zap.String("entry", rl.stacks.Entry()), zap.Uint64("generation", rl.stacks.Generation()))
}
