package postprocess

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch processes selected files under root whenever they are created or
// written, until ctx is cancelled. onResult, if non-nil, is called for every
// processed file, from a timer goroutine. Rewrites made by the processor
// itself trigger one more pass that finds nothing to promote.
func (p *Processor) Watch(ctx context.Context, root string, onResult func(FileResult)) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	w := &watchLoop{
		proc:     p,
		root:     absRoot,
		watcher:  watcher,
		onResult: onResult,
		pending:  make(map[string]*time.Timer),
	}
	if err := w.watchRecursive(ctx, absRoot, false); err != nil {
		return err
	}
	defer w.stopAll()

	p.logger.Info("watching for html changes", slog.String("root", absRoot))
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("watcher error", slog.Any("err", err))
		case <-ctx.Done():
			return nil
		}
	}
}

type watchLoop struct {
	proc     *Processor
	root     string
	watcher  *fsnotify.Watcher
	onResult func(FileResult)

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func (w *watchLoop) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Name == "" {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// A directory moved into place may already hold pages.
			if err := w.watchRecursive(ctx, event.Name, true); err != nil {
				w.proc.logger.Warn("watch new directory", slog.String("path", event.Name), slog.Any("err", err))
			}
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	rel := w.relativePath(event.Name)
	if !w.proc.Matches(rel) {
		return
	}
	w.schedule(ctx, event.Name, rel)
}

// schedule (re)arms the debounce timer for path.
func (w *watchLoop) schedule(ctx context.Context, path, rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.proc.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}

		res, err := w.proc.File(ctx, path)
		if err != nil {
			w.proc.logger.Error("process changed file", slog.String("path", rel), slog.Any("err", err))
			return
		}
		res.Path = rel
		if w.onResult != nil {
			w.onResult(res)
		}
	})
}

func (w *watchLoop) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// watchRecursive registers dir and its subdirectories. With scan set, the
// selected files found along the way are scheduled for processing.
func (w *watchLoop) watchRecursive(ctx context.Context, dir string, scan bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if !scan {
				return nil
			}
			if rel := w.relativePath(path); w.proc.Matches(rel) {
				w.schedule(ctx, path, rel)
			}
			return nil
		}
		if path != w.root && !w.proc.opts.IncludeHidden && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.proc.logger.Warn("failed to watch directory", slog.String("path", path), slog.Any("err", err))
		}
		return nil
	})
}

func (w *watchLoop) relativePath(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}
