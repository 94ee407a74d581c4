// Package watch mirrors a local directory into the save pipeline: OS
// file writes under the mirror root surface as change events with
// root-relative slash paths, the same shape the virtual filesystem
// emits.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
	"github.com/green3g/vscode-arcgis-assistant/internal/vfs"
)

// Handler receives batches of change events.
type Handler func(ctx context.Context, events []vfs.Event)

// Watcher follows a directory tree and reports file changes. Editors
// often emit several write events per save, so events are coalesced
// over a short settle window before delivery.
type Watcher struct {
	root    string
	settle  time.Duration
	handler Handler
	fsw     *fsnotify.Watcher
}

// New creates a watcher over root. New directories appearing under the
// root are picked up automatically.
func New(root string, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, settle: 250 * time.Millisecond, handler: handler, fsw: fsw}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Run delivers events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var pending []vfs.Event
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		w.handler(ctx, batch)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watch error", zap.Error(err))
		case ev, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return nil
			}
			converted, keep := w.convert(ev)
			if !keep {
				continue
			}
			pending = append(pending, converted)
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.settle)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			flush()
		}
	}
}

// convert maps an OS event to the virtual event shape, watching new
// directories along the way.
func (w *Watcher) convert(ev fsnotify.Event) (vfs.Event, bool) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				logging.Warn("watch new directory failed",
					zap.String("dir", ev.Name), zap.Error(err))
			}
			return vfs.Event{}, false
		}
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return vfs.Event{}, false
	}
	path := filepath.ToSlash(rel)

	switch {
	case ev.Has(fsnotify.Create):
		return vfs.Event{Path: path, Kind: vfs.Created}, true
	case ev.Has(fsnotify.Write):
		return vfs.Event{Path: path, Kind: vfs.Changed}, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return vfs.Event{Path: path, Kind: vfs.Deleted}, true
	}
	return vfs.Event{}, false
}
