package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 150 * time.Millisecond

// ChangeKind describes what happened to a draft file.
type ChangeKind string

const (
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeCallback is called once per settled change of a draft file.
type ChangeCallback func(kind ChangeKind, name string)

// Watch watches the drafts root and reports changes to .md files until ctx
// is cancelled. Bursts of events for one file (editors often write, chmod
// and rename in quick succession) are collapsed into one callback.
func Watch(ctx context.Context, root string, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]ChangeKind)
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			timerCh = timer.C
		} else {
			timer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			for name, kind := range pending {
				delete(pending, name)
				logger.Debug("watcher: draft changed", slog.String("name", name), slog.String("op", string(kind)))
				if cb != nil {
					cb(kind, name)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[name] = ChangeUpdated
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				pending[name] = ChangeDeleted
			default:
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
