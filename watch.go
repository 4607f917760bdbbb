package liveserver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnore are always skipped by the watcher: hidden files, editor
// backups and dependencies
var DefaultIgnore = []string{".*", "*~", "*.swp", "node_modules"}

// Op is the kind of change
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is a debounced filesystem change
type Change struct {
	Op Op
	// Path is absolute
	Path string
	// Rel is relative to the root, with forward slashes
	Rel string
}

// String returns the change in "op:path" form
func (c Change) String() string {
	return string(c.Op) + ":" + c.Rel
}

// Watcher watches the root recursively and emits one Change per burst of
// events on the same path
type Watcher struct {
	root    string
	wait    time.Duration
	log     *slog.Logger
	files   *FileSet
	ignore  *ignore.GitIgnore
	fsw     *fsnotify.Watcher
	changes chan Change
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	pending map[string]*pending
}

// pending is the debounce timer of a single path
type pending struct {
	debounce func(func())
}

// NewWatcher registers the root and every directory beneath it, recording
// the files it finds in files. Directories that can't be watched are logged
// and skipped.
func NewWatcher(log *slog.Logger, files *FileSet, cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("liveserver: unable to create watcher: %w", err)
	}
	if err := fsw.Add(cfg.Root); err != nil {
		fsw.Close()
		return nil, &WatchSubtreeError{cfg.Root, err}
	}
	wait := cfg.Wait
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}
	w := &Watcher{
		root:    cfg.Root,
		wait:    wait,
		log:     log,
		files:   files,
		ignore:  ignore.CompileIgnoreLines(append(append([]string{}, DefaultIgnore...), cfg.Ignore...)...),
		fsw:     fsw,
		changes: make(chan Change, 64),
		done:    make(chan struct{}),
		pending: map[string]*pending{},
	}
	w.addTree(cfg.Root)
	return w, nil
}

// Changes returns the debounced changes
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Done is closed once the watcher stops
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Run delivers filesystem events until the context is canceled or the
// watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("liveserver: watcher error", "error", err)
		}
	}
}

// Close stops the watcher. Pending changes are dropped.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	return w.ignore.MatchesPath(filepath.ToSlash(rel))
}

// addTree watches dir and its subdirectories and records their files
func (w *Watcher) addTree(dir string) {
	filepath.WalkDir(dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("liveserver: skipping subtree", "error", &WatchSubtreeError{path, err})
			if de == nil || de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if w.ignored(path) {
			if de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if de.IsDir() {
			if path == w.root {
				return nil
			}
			if err := w.fsw.Add(path); err != nil {
				w.log.Warn("liveserver: skipping subtree", "error", &WatchSubtreeError{path, err})
				return filepath.SkipDir
			}
			w.log.Debug("liveserver: watching", "dir", path)
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return nil
		}
		w.files.Update(path, info.ModTime())
		return nil
	})
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if path == w.root || w.ignored(path) {
		return
	}
	w.log.Debug("liveserver: got event", "event", event.String())
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			// Already gone again
			return
		}
		if info.IsDir() {
			w.addTree(path)
		} else {
			w.files.Update(path, info.ModTime())
		}
		w.schedule(OpCreate, path)
	case event.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil {
			w.files.Update(path, info.ModTime())
		}
		w.schedule(OpUpdate, path)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.files.Remove(path)
		// Removed directories drop their watch on their own, renamed ones
		// don't
		w.fsw.Remove(path)
		w.schedule(OpDelete, path)
	case event.Has(fsnotify.Chmod):
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		if !w.files.Update(path, info.ModTime()) {
			return
		}
		w.schedule(OpUpdate, path)
	}
}

// schedule resets the debounce timer of the path. Only the last change of a
// burst is delivered.
func (w *Watcher) schedule(op Op, path string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	change := Change{Op: op, Path: path, Rel: filepath.ToSlash(rel)}
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pending[path]
	if !ok {
		p = &pending{debounce.New(w.wait)}
		w.pending[path] = p
	}
	p.debounce(func() { w.emit(p, change) })
}

func (w *Watcher) emit(p *pending, change Change) {
	w.mu.Lock()
	if w.pending[change.Path] == p {
		delete(w.pending, change.Path)
	}
	w.mu.Unlock()
	select {
	case w.changes <- change:
	case <-w.done:
	}
}
