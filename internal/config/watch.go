package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "briefbot/pkg/logx"
)

// Watch emits a signal whenever the config file changes on disk. The runner
// consumes signals between runs; a reload never interrupts a batch in flight.
//
// The parent directory is watched rather than the file itself so atomic
// save-by-rename (editors, configuration management) still delivers events.
func Watch(ctx context.Context, path string, log logx.Logger) (<-chan struct{}, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(abs)
	base := filepath.Base(abs)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer w.Close()
		defer close(out)

		const debounce = 250 * time.Millisecond
		var timer *time.Timer
		fire := func() {
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case out <- struct{}{}:
				default:
				}
			})
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
					fire()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watch error", logx.Err(err))
			}
		}
	}()
	return out, nil
}
