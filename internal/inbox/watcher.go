package inbox

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchConfig configures the drop-directory watcher used by the daemon to
// trigger a run as soon as new mail lands, instead of waiting for the next
// scheduled tick.
type WatchConfig struct {
	Root     string
	Debounce time.Duration // coalesce rapid create/rename bursts
}

// StartWatcher emits the path of each new message file dropped under the
// root. The channel closes when ctx is cancelled.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *zap.Logger) (<-chan string, error) {
	if cfg.Root == "" {
		return nil, errors.New("no watch root provided")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("inbox.watcher_create_failed", zap.Error(err))
		return nil, err
	}
	if err := w.Add(cfg.Root); err != nil {
		logger.Error("inbox.watcher_add_failed", zap.String("root", cfg.Root), zap.Error(err))
		_ = w.Close()
		return nil, err
	}

	evCh := make(chan string, 64)
	go func() {
		defer close(evCh)
		defer func() { _ = w.Close() }()

		pending := map[string]time.Time{}
		ticker := time.NewTicker(cfg.Debounce)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if !allowedMessageFile(strings.ToLower(filepath.Base(ev.Name))) {
					continue
				}
				pending[ev.Name] = time.Now()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("inbox.watcher_error", zap.Error(err))
			case now := <-ticker.C:
				for path, seen := range pending {
					if now.Sub(seen) < cfg.Debounce {
						continue
					}
					delete(pending, path)
					select {
					case evCh <- path:
					default:
						logger.Warn("inbox.watcher_drop", zap.String("path", path))
					}
				}
			}
		}
	}()
	return evCh, nil
}
