// Package watcher follows changes under the branches root and reports the ones
// that can change a branch inventory or its archive.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/jgivc/modserver/internal/config"
	"github.com/jgivc/modserver/internal/entity"
)

const (
	maxSegments = 4

	relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename | fsnotify.Chmod
)

type Trigger interface {
	Trigger(branch, path string)
}

type Watcher struct {
	cfg     *config.SyncConfig
	trigger Trigger
	started atomic.Bool
	fsw     *fsnotify.Watcher
	done    chan struct{}
	log     *slog.Logger
}

func New(cfg *config.SyncConfig, trigger Trigger, log *slog.Logger) *Watcher {
	return &Watcher{
		cfg:     cfg,
		trigger: trigger,
		done:    make(chan struct{}),
		log:     log.With(slog.String("item", "Watcher")),
	}
}

// Start watches the branches root until ctx is done or Stop is called. Calling
// Start again is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.started.Store(false)

		return err
	}
	w.fsw = fsw

	// fsnotify only watches single directories, so every directory is added.
	if err := w.addTree(w.cfg.BranchesDir, false); err != nil {
		fsw.Close()
		w.started.Store(false)

		return err
	}

	go w.loop(ctx)

	w.log.Info("Started", slog.String("root", w.cfg.BranchesDir))

	return nil
}

// Stop closes the watch. It waits for the event loop to exit.
func (w *Watcher) Stop() {
	if !w.started.Load() || w.fsw == nil {
		return
	}

	w.fsw.Close()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()

			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("Watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&relevantOps == 0 {
		return
	}

	w.log.Debug("Event", slog.String("op", event.Op.String()), slog.String("path", event.Name))

	if event.Has(fsnotify.Create) {
		if isDir(event.Name) {
			// Files may have landed before the watch on the new directory was in place.
			if err := w.addTree(event.Name, true); err != nil {
				w.log.Error("Cannot watch new directory", slog.String("path", event.Name), slog.Any("error", err))
			}

			return
		}
	}

	w.dispatch(event.Name)
}

func (w *Watcher) dispatch(path string) {
	rel, err := filepath.Rel(w.cfg.BranchesDir, path)
	if err != nil {
		return
	}

	branch, ok := Match(rel, w.cfg.ArchiveName)
	if !ok {
		return
	}

	w.trigger.Trigger(branch, path)
}

func (w *Watcher) addTree(root string, dispatchFiles bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}

			return nil
		}

		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				w.log.Error("Cannot watch directory", slog.String("path", path), slog.Any("error", err))
			}

			return nil
		}

		if dispatchFiles {
			w.dispatch(path)
		}

		return nil
	})
}

// Match decides whether a path relative to the branches root can affect a
// branch, and returns that branch. Accepted shapes are
//
//	<branch>/<archive>
//	<branch>/{both,client_only}/<mod>.jar
//	<branch>/{both,client_only}/optional/<mod>.jar
func Match(rel, archiveName string) (string, bool) {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}

	// Only the first segments count, anything deeper is dropped.
	parts := strings.Split(rel, "/")
	parts = parts[:min(len(parts), maxSegments)]

	switch len(parts) {
	case 2:
		if parts[1] != archiveName {
			return "", false
		}
	case 3:
		if !entity.IsProfileDir(parts[1]) || !entity.IsModName(parts[2]) {
			return "", false
		}
	case 4:
		if !entity.IsProfileDir(parts[1]) || parts[2] != entity.DirOptional || !entity.IsModName(parts[3]) {
			return "", false
		}
	default:
		return "", false
	}

	return parts[0], true
}

func isDir(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}
