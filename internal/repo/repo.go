// Package repo publishes the snapshot cache through version control.
//
// A Repository collects commit comments while objects are saved, commits
// and pushes the cache directory on request, and on update pulls and
// reports which object files changed since the last synchronized revision.
// The last synchronized revision is kept in <state_dir>/sync.yaml and only
// moves forward once ConfirmUpdate is called.
package repo

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yatools/yasync/internal/events"
	"github.com/yatools/yasync/internal/snapshot"
	"github.com/yatools/yasync/internal/vcs"
)

// DefaultSubject is the first line of every cache commit message.
const DefaultSubject = "ya: update cache"

// Options configures a Repository.
type Options struct {
	// CacheDir is the snapshot store directory relative to the repository
	// root.
	CacheDir string
	// StateDir holds the sync state file, relative to the repository root.
	StateDir string

	Remote string
	// Ref is the branch (git) or bookmark (jj) to pull and push. Empty
	// means the current branch; jj requires it for pushing.
	Ref    string
	Author string
	// Push publishes each commit when a remote is configured.
	Push bool

	Logger *zap.Logger
}

var _ events.Repository = (*Repository)(nil)

// Repository implements the version-control side of the sync session.
type Repository struct {
	vcs       vcs.VCS
	root      string
	cacheDir  string
	statePath string
	opts      Options
	logger    *zap.Logger

	mu       sync.Mutex
	comments []string
	seen     map[string]bool
	state    SyncState
	// pending is the head reported by the last UpdateCache, not yet
	// confirmed.
	pending string
}

// Open binds a Repository to v and loads the persisted sync state.
func Open(v vcs.VCS, opts Options) (*Repository, error) {
	root, err := v.RepoRoot()
	if err != nil {
		return nil, err
	}
	cacheDir := strings.Trim(path.Clean(filepath.ToSlash(opts.CacheDir)), "/")
	if cacheDir == "" || cacheDir == "." || strings.HasPrefix(cacheDir, "..") {
		return nil, fmt.Errorf("invalid cache directory %q", opts.CacheDir)
	}
	if opts.StateDir == "" {
		opts.StateDir = ".ya"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	statePath := filepath.Join(root, filepath.FromSlash(opts.StateDir), StateFile)
	st, err := readState(statePath)
	if err != nil {
		return nil, err
	}

	return &Repository{
		vcs:       v,
		root:      root,
		cacheDir:  cacheDir,
		statePath: statePath,
		opts:      opts,
		logger:    logger.Named("repo"),
		seen:      make(map[string]bool),
		state:     st,
	}, nil
}

// Root returns the repository root.
func (r *Repository) Root() string {
	return r.root
}

// VCS returns the underlying backend.
func (r *Repository) VCS() vcs.VCS {
	return r.vcs
}

// State returns the current sync state.
func (r *Repository) State() SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// AddComment queues msg for the next commit message. Duplicate lines are
// dropped until the next successful commit.
func (r *Repository) AddComment(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg == "" || r.seen[msg] {
		return
	}
	r.seen[msg] = true
	r.comments = append(r.comments, msg)
}

// Comments returns the queued commit comments.
func (r *Repository) Comments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.comments...)
}

// Message renders the commit message for the queued comments.
func (r *Repository) Message() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.comments) == 0 {
		return DefaultSubject
	}
	return DefaultSubject + "\n\n" + strings.Join(r.comments, "\n")
}

// CommitCache commits the cache directory with the queued comments and
// pushes when configured. Nothing to commit counts as success. Comments
// survive a failed commit so they describe the files the next one picks up.
func (r *Repository) CommitCache(ctx context.Context) bool {
	changed, err := r.vcs.HasChanges(r.cacheDir)
	if err != nil {
		r.logger.Warn("Failed to inspect cache directory", zap.Error(err))
		return false
	}
	if !changed {
		r.logger.Debug("Nothing to commit")
		r.clearComments()
		return true
	}

	err = r.vcs.Commit(ctx, vcs.CommitOptions{
		Message: r.Message(),
		Paths:   []string{r.cacheDir},
		Author:  r.opts.Author,
	})
	if err != nil {
		r.logger.Warn("Commit failed", zap.Error(err))
		return false
	}
	r.clearComments()

	// Pulled changes not yet loaded keep the synced head where it is. The
	// next update then reports them along with this commit's own files.
	if r.hasPending() {
		r.logger.Debug("Keeping synced head until pulled changes are loaded")
	} else if err := r.recordHead(ctx); err != nil {
		r.logger.Warn("Failed to record synced head", zap.Error(err))
	}

	if r.opts.Push && r.vcs.HasRemote() {
		err := r.vcs.Push(ctx, vcs.PushOptions{Remote: r.opts.Remote, Ref: r.opts.Ref})
		if err != nil {
			r.logger.Warn("Push failed", zap.Error(err), zap.Bool("retryable", vcs.IsRetryable(err)))
			return false
		}
		r.logger.Debug("Pushed cache", zap.String("remote", r.opts.Remote))
	}
	return true
}

// UpdateCache pulls remote changes and returns the cache paths that changed
// between the last synchronized revision and the new head. The new head is
// not recorded until ConfirmUpdate, so a change set whose replay fails is
// reported again by the next UpdateCache.
func (r *Repository) UpdateCache(ctx context.Context) (snapshot.ChangeSet, error) {
	var cs snapshot.ChangeSet

	err := r.vcs.Pull(ctx, vcs.PullOptions{Remote: r.opts.Remote, Ref: r.opts.Ref, Rebase: true})
	if err != nil {
		return cs, fmt.Errorf("failed to pull: %w", err)
	}

	head, err := r.vcs.Head(ctx)
	if err != nil {
		return cs, fmt.Errorf("failed to resolve head: %w", err)
	}

	last := r.State().Head
	r.setPending("")
	if head == "" || head == last {
		return cs, nil
	}

	changes, err := r.vcs.Diff(ctx, last, head, r.cacheDir)
	if err != nil {
		return cs, fmt.Errorf("failed to diff %s..%s: %w", short(last), short(head), err)
	}
	for _, c := range changes {
		p := filepath.ToSlash(c.Path)
		switch {
		case c.Status.Removed():
			cs.Deleted = append(cs.Deleted, p)
		case c.Status.Present():
			cs.Updated = append(cs.Updated, p)
		}
	}

	r.setPending(head)
	r.logger.Debug("Cache updated",
		zap.String("from", short(last)),
		zap.String("to", short(head)),
		zap.Int("updated", len(cs.Updated)),
		zap.Int("deleted", len(cs.Deleted)))
	return cs, nil
}

// ConfirmUpdate records the head reported by the last UpdateCache as
// synchronized. It does nothing when there is no unconfirmed head.
func (r *Repository) ConfirmUpdate() error {
	r.mu.Lock()
	head := r.pending
	r.mu.Unlock()
	if head == "" {
		return nil
	}
	return r.setHead(head)
}

func (r *Repository) hasPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending != ""
}

func (r *Repository) setPending(head string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = head
}

// MarkSynced records the current head as synchronized without loading
// anything. Used after a full export or import.
func (r *Repository) MarkSynced(ctx context.Context) error {
	return r.recordHead(ctx)
}

func (r *Repository) recordHead(ctx context.Context) error {
	head, err := r.vcs.Head(ctx)
	if err != nil {
		return err
	}
	return r.setHead(head)
}

func (r *Repository) setHead(head string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := SyncState{Head: head, SyncedAt: time.Now().UTC(), Backend: string(r.vcs.Name())}
	if err := writeState(r.statePath, st); err != nil {
		return err
	}
	r.state = st
	r.pending = ""
	return nil
}

func (r *Repository) clearComments() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comments = nil
	r.seen = make(map[string]bool)
}

func short(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	if rev == "" {
		return "<none>"
	}
	return rev
}
