// Package ingest turns filesystem uploads into intake notifications: the Go
// rendition of the bucket's event trigger.
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

	"github.com/docpipe/docpipe/internal/entity"
)

type WatchConfig struct {
	Root        string        // storage root; keys are paths relative to it
	Bucket      string        // logical bucket name stamped on notifications
	InitialScan bool          // if true, walk the root and emit existing files
	Debounce    time.Duration // coalesce rapid write bursts on one file
}

// StartWatcher watches the storage root recursively and emits one
// UploadNotification per settled file event. It does no validation beyond
// "a file changed" — the intake gate owns the allow-list, the key shape and
// the zero-byte policy, exactly as it would behind a real bucket trigger.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan entity.UploadNotification, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Root == "" {
		return nil, nil, errors.New("no watch root provided")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}

	evCh := make(chan entity.UploadNotification, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	emit := func(path string) {
		n, ok := notificationFor(cfg, path)
		if !ok {
			return
		}
		select {
		case evCh <- n:
		default:
			logger.Warn("watcher.dropped_event", "path", path)
		}
	}

	// Add the root recursively; optionally replay files already present.
	walkErr := filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if cfg.InitialScan {
			emit(path)
		}
		return nil
	})
	if walkErr != nil {
		logger.Error("failed to watch root", "root", cfg.Root, "error", walkErr)
		_ = w.Close()
		return nil, nil, walkErr
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() { _ = w.Close() }()

		// pending and evCh are touched only by this goroutine; the debounce
		// flush happens here too, via the timer channel.
		pending := map[string]struct{}{}
		timer := time.NewTimer(cfg.Debounce)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				for p := range pending {
					emit(p)
					delete(pending, p)
				}
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create != 0 {
					// New directories (user folders) need watching too.
					if info, statErr := os.Stat(e.Name); statErr == nil && info.IsDir() {
						if addErr := w.Add(e.Name); addErr != nil {
							logger.Warn("failed to watch new directory", "path", e.Name, "error", addErr)
						}
						continue
					}
				}
				if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					pending[e.Name] = struct{}{}
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(cfg.Debounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// notificationFor stats the file and builds the trigger event. Files that
// vanished between the event and the stat are skipped.
func notificationFor(cfg WatchConfig, path string) (entity.UploadNotification, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return entity.UploadNotification{}, false
	}
	rel, err := filepath.Rel(cfg.Root, path)
	if err != nil {
		return entity.UploadNotification{}, false
	}
	return entity.UploadNotification{
		Bucket:    cfg.Bucket,
		Key:       filepath.ToSlash(rel),
		Size:      info.Size(),
		EventTime: time.Now().UTC(),
	}, true
}
