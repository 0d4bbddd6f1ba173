package vdir

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses bursts of filesystem events (sync tools rewrite whole
// directories) into a single reload.
const debounce = 500 * time.Millisecond

// Watch reloads the index whenever the contact directory or list file
// changes, invoking onReload with each fresh snapshot's warnings. It
// blocks until ctx is done.
func (l *Loader) Watch(ctx context.Context, logger *slog.Logger, onReload func([]Warning)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if l.dir != "" {
		if err := w.Add(l.dir); err != nil {
			logger.Warn("cannot watch contact directory", "dir", l.dir, "error", err)
		}
	}
	if l.listFile != "" {
		if err := w.Add(l.listFile); err != nil {
			logger.Warn("cannot watch contact list file", "path", l.listFile, "error", err)
		}
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !l.relevant(ev) {
				continue
			}
			logger.Debug("contact source changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("contact watcher error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			_, warnings := l.Load()
			logger.Info("contacts reloaded", "warnings", len(warnings))
			if onReload != nil {
				onReload(warnings)
			}
		}
	}
}

func (l *Loader) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	// Directory events only matter for card files; the list file is
	// watched directly.
	return strings.HasSuffix(ev.Name, ".vcf") || ev.Name == l.listFile
}
