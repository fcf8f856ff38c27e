// Package watch feeds external file-system edits into the server's
// re-analysis queue, so changes made outside the editor (generators, git
// checkouts) are re-analyzed and re-indexed like any other edit.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the absolute path of a changed source file.
type ChangeFunc func(path string)

// Watcher observes a project tree for Sail source changes. Debouncing is
// the caller's concern; the Watcher only filters and forwards events.
type Watcher struct {
	fw       *fsnotify.Watcher
	ext      string
	onChange ChangeFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New starts watching every directory under root. Events for files with ext
// are forwarded to onChange; directories created later are registered on
// the fly.
func New(root, ext string, onChange ChangeFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fw:       fw,
		ext:      ext,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	go w.loop()
	return w, nil
}

// Stop ends the watch loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fw.Close()
	})
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addTree(ev.Name)
			return
		}
	}
	if !strings.HasSuffix(ev.Name, w.ext) {
		return
	}
	if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) ||
		ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		w.onChange(ev.Name)
	}
}
