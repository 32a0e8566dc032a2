package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// EventOp is the kind of change observed on an object file.
type EventOp int

const (
	OpCreate EventOp = iota
	OpModify
	OpDelete
)

func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a change to one object file.
type FileEvent struct {
	// Path is relative to the repository root, slash-separated.
	Path string
	Kind kind.Kind
	Op   EventOp
}

// FileWatcher watches the kind directories of a cache for object file
// changes.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	root    string
	prefix  string

	events chan FileEvent
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewFileWatcher creates a watcher for the cache directory prefix inside
// root. It emits nothing until Start.
func NewFileWatcher(root, prefix string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher: watcher,
		root:    root,
		prefix:  prefix,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start creates any missing kind directories and watches all of them.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	for _, k := range kind.All() {
		dir := filepath.Join(fw.root, filepath.FromSlash(fw.prefix), k.String())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()
	return nil
}

// Stop closes the watcher and waits for the event loop to exit. The event
// and error channels are closed afterwards.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	fw.wg.Wait()
	close(fw.events)
	close(fw.errors)
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true between Start and Stop.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fe, ok := fw.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case fw.events <- fe:
			case <-fw.done:
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to a FileEvent. Temporary files,
// foreign names and chmod events are dropped. A rename away from a path is
// a delete; the new name arrives as its own create.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	rel, err := filepath.Rel(fw.root, event.Name)
	if err != nil {
		return FileEvent{}, false
	}
	rel = filepath.ToSlash(rel)
	if !snapshot.UnderPrefix(fw.prefix, rel) || strings.HasPrefix(filepath.Base(rel), ".") {
		return FileEvent{}, false
	}
	k, _, err := snapshot.ParsePath(rel)
	if err != nil {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return FileEvent{}, false
	}
	return FileEvent{Path: rel, Kind: k, Op: op}, true
}
