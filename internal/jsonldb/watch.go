// Reloads tables when their files are edited outside the store.

package jsonldb

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads tables whose file is changed by another process, for example
// a hand edit or a git checkout. It returns once the watcher is installed and
// keeps running until ctx is done. onReload, if not nil, is called with the
// table name after each successful reload.
//
// Files that fail to parse are skipped with a warning; the in-memory rows are
// kept until a valid version appears.
func (s *Store) Watch(ctx context.Context, onReload func(table string)) error {
	if s.dir == "" {
		return errors.New("memory-only store cannot be watched")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory rather than the files: atomic writes replace the
	// inode, which drops per-file watches.
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				s.reloadFile(ctx, event.Name, onReload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching data directory", "err", err)
			}
		}
	}()
	return nil
}

func (s *Store) reloadFile(ctx context.Context, path string, onReload func(string)) {
	base := filepath.Base(path)
	name, ok := strings.CutSuffix(base, ".jsonl")
	if !ok {
		return
	}
	s.mu.RLock()
	t := s.tables[name]
	s.mu.RUnlock()
	if t == nil {
		return
	}
	changed, err := t.reload()
	if err != nil {
		slog.WarnContext(ctx, "Ignoring unreadable table file", "table", name, "err", err)
		return
	}
	if changed {
		slog.InfoContext(ctx, "Reloaded table after external edit", "table", name, "rows", t.Len())
		if onReload != nil {
			onReload(name)
		}
	}
}
