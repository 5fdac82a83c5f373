package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing files
	Debounce    time.Duration // coalesce rapid create/write/rename bursts
	SkipHidden  bool
}

// StartWatcher emits the paths of allowed files created or written under the
// roots. A path is emitted once its events have been quiet for Debounce.
// Both channels close when ctx ends.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watch.init.fail", "err", err)
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if cfg.SkipHidden && path != root && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && AllowedExt(filepath.Ext(path)) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("watch.root.fail", "root", r, "err", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watch.close.fail", "err", err)
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		pending := map[string]time.Time{}
		tick := time.NewTicker(tickFor(cfg.Debounce))
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
						if err := addDirTree(w, e.Name, cfg.SkipHidden); err != nil {
							logger.Warn("watch.add_dir.fail", "path", e.Name, "err", err)
						}
						continue
					}
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if !AllowedExt(filepath.Ext(e.Name)) || (cfg.SkipHidden && IsHidden(e.Name)) {
					continue
				}
				pending[e.Name] = time.Now()
			case <-tick.C:
				now := time.Now()
				for p, last := range pending {
					if now.Sub(last) < cfg.Debounce {
						continue
					}
					delete(pending, p)
					// renamed away or deleted before it settled
					if _, err := os.Stat(p); err != nil {
						continue
					}
					if !emit(p) {
						return
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watch.error", "err", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func tickFor(debounce time.Duration) time.Duration {
	if debounce <= 0 {
		return 50 * time.Millisecond
	}
	if t := debounce / 4; t > 10*time.Millisecond {
		return t
	}
	return 10 * time.Millisecond
}

func addDirTree(w *fsnotify.Watcher, root string, skipHidden bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skipHidden && IsHidden(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// Watch ingests every path StartWatcher emits until ctx ends. Per-file
// failures are logged and do not stop the watch.
func Watch(ctx context.Context, ing Ingestor, cfg WatchConfig, link Link, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	events, errs, err := StartWatcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("watch.start", "roots", cfg.Roots, "debounce", cfg.Debounce)
	for {
		select {
		case p, ok := <-events:
			if !ok {
				logger.Info("watch.stop")
				return nil
			}
			if _, err := ing.IngestPath(ctx, p, link); err != nil && ctx.Err() == nil {
				logger.Warn("watch.ingest.fail", "path", p, "err", err)
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}
