// Package daemon keeps a live database in step with its snapshot cache.
//
// The daemon:
//  1. Watches the cache kind directories for object file changes
//  2. Replays debounced batches of changes through the session
//  3. Periodically pulls from the remote and replays what arrived
//
// All session calls go through one mutex, so the session only ever sees a
// single caller.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yatools/yasync/internal/events"
	"github.com/yatools/yasync/internal/snapshot"
)

// Session is the part of events.Events the daemon drives.
type Session interface {
	Load(ctx context.Context, cs snapshot.ChangeSet) (events.LoadStats, error)
	Update(ctx context.Context) (events.LoadStats, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// PullInterval is how often to pull and replay remote changes. Zero
	// disables pulling.
	PullInterval time.Duration

	// DebounceInterval is how long a changed path must stay quiet before it
	// is replayed. It batches the burst of writes a checkout produces.
	DebounceInterval time.Duration

	// OnReplay, when set, is called after every Load or Update the daemon
	// runs, with the session lock held.
	OnReplay func(Replay)

	Logger *zap.Logger
}

// Replay sources.
const (
	SourceWatch = "watch"
	SourcePull  = "pull"
)

// Replay describes one Load or Update run by the daemon.
type Replay struct {
	Source  string
	Stats   events.LoadStats
	Elapsed time.Duration
	Err     error
	Totals  Stats
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PullInterval:     time.Minute,
		DebounceInterval: 200 * time.Millisecond,
	}
}

// Stats counts what the daemon has replayed since it started.
type Stats struct {
	Batches int
	Pulls   int
	Updated int
	Deleted int
	Errors  int
}

// Daemon replays cache changes into a session.
type Daemon struct {
	session Session
	root    string
	prefix  string
	config  *Config
	logger  *zap.Logger

	watcher *FileWatcher

	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	sessionMu sync.Mutex
	stats     Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon for the cache directory prefix inside root.
func New(session Session, root, prefix string, config *Config) (*Daemon, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	if root == "" || prefix == "" {
		return nil, fmt.Errorf("root and prefix cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := NewFileWatcher(root, prefix)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		session:     session,
		root:        root,
		prefix:      prefix,
		config:      config,
		logger:      logger.Named("daemon"),
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins watching and pulling. It blocks until ctx is cancelled or
// Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("Starting daemon", zap.String("cache", d.prefix))

	if err := d.watcher.Start(); err != nil {
		return err
	}

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	if d.config.PullInterval > 0 {
		d.wg.Add(1)
		go d.pullLoop()
	}

	select {
	case <-ctx.Done():
		d.logger.Info("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for in-flight work.
func (d *Daemon) Stop() error {
	d.cancel()
	err := d.watcher.Stop()
	d.wg.Wait()
	d.logger.Info("Daemon stopped")
	return err
}

// Do runs fn with exclusive access to the session.
func (d *Daemon) Do(fn func() error) error {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()
	return fn()
}

// Stats returns a snapshot of the counters.
func (d *Daemon) Stats() Stats {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()
	return d.stats
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	evs, errs := d.watcher.Events(), d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-evs:
			if !ok {
				return
			}
			d.logger.Debug("File event", zap.Stringer("op", ev.Op), zap.String("path", ev.Path))
			d.queueChange(ev.Path)

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// queueChange (re)starts the debounce timer of path.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	d.changeQueue[path] = time.Now()
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges(time.Now())
		}
	}
}

// processPendingChanges replays every path that has been quiet for the
// debounce interval. The file's presence at replay time decides whether it
// is updated or deleted, which folds create/delete bursts into their final
// state.
func (d *Daemon) processPendingChanges(now time.Time) {
	ready := d.takeReady(now)
	if len(ready) == 0 {
		return
	}

	var cs snapshot.ChangeSet
	for _, p := range ready {
		if _, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(p))); err == nil {
			cs.Updated = append(cs.Updated, p)
		} else {
			cs.Deleted = append(cs.Deleted, p)
		}
	}

	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()

	started := time.Now()
	stats, err := d.session.Load(d.ctx, cs)
	d.stats.Batches++
	defer d.notify(SourceWatch, stats, started, err)
	if err != nil {
		d.stats.Errors++
		d.logger.Error("Failed to load cache changes", zap.Error(err))
		return
	}
	d.stats.Updated += stats.Updated
	d.stats.Deleted += stats.Deleted
	d.logger.Info("Loaded cache changes",
		zap.Int("updated", stats.Updated),
		zap.Int("deleted", stats.Deleted),
		zap.Int("files", stats.Files))
}

func (d *Daemon) takeReady(now time.Time) []string {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	var ready []string
	for p, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, p)
		delete(d.changeQueue, p)
	}
	sort.Strings(ready)
	return ready
}

func (d *Daemon) pullLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.pull()
		}
	}
}

// pull runs one Update. File events caused by the pull itself are dropped
// from the queue since Update already replayed those files.
func (d *Daemon) pull() {
	d.sessionMu.Lock()
	defer d.sessionMu.Unlock()

	started := time.Now()
	stats, err := d.session.Update(d.ctx)
	d.stats.Pulls++
	defer d.notify(SourcePull, stats, started, err)
	if err != nil {
		d.stats.Errors++
		d.logger.Warn("Update failed", zap.Error(err))
		return
	}
	d.stats.Updated += stats.Updated
	d.stats.Deleted += stats.Deleted

	d.changeQueueMu.Lock()
	for p, queuedAt := range d.changeQueue {
		if !queuedAt.Before(started) {
			delete(d.changeQueue, p)
		}
	}
	d.changeQueueMu.Unlock()

	if stats.Updated+stats.Deleted > 0 {
		d.logger.Info("Pulled cache changes",
			zap.Int("updated", stats.Updated),
			zap.Int("deleted", stats.Deleted))
	}
}

func (d *Daemon) notify(source string, stats events.LoadStats, started time.Time, err error) {
	if d.config.OnReplay == nil {
		return
	}
	d.config.OnReplay(Replay{
		Source:  source,
		Stats:   stats,
		Elapsed: time.Since(started),
		Err:     err,
		Totals:  d.stats,
	})
}
