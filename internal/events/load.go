package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yatools/yasync/internal/closure"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// Update implements Events.Update.
func (s *session) Update(ctx context.Context) (LoadStats, error) {
	cs, err := s.repo.UpdateCache(ctx)
	if err != nil {
		return LoadStats{}, fmt.Errorf("failed to update cache: %w", err)
	}
	var stats LoadStats
	if cs = s.filter(cs); !cs.Empty() {
		stats, err = s.Load(ctx, cs)
		if err != nil {
			return stats, err
		}
	}
	if err := s.repo.ConfirmUpdate(); err != nil {
		return stats, fmt.Errorf("failed to record synced revision: %w", err)
	}
	return stats, nil
}

// filter drops updated paths that are not below the cache directory.
func (s *session) filter(cs snapshot.ChangeSet) snapshot.ChangeSet {
	prefix := s.store.Prefix()
	out := snapshot.ChangeSet{Deleted: cs.Deleted}
	for _, p := range cs.Updated {
		if snapshot.UnderPrefix(prefix, p) {
			out.Updated = append(out.Updated, p)
			continue
		}
		s.logger.Debug("ignoring change outside the cache", zap.String("path", p))
	}
	return out
}

type deletedObject struct {
	kind kind.Kind
	id   ids.ID
}

func (s *session) parseDeleted(paths []string) []deletedObject {
	out := make([]deletedObject, 0, len(paths))
	for _, p := range paths {
		k, id, err := snapshot.ParsePath(p)
		if err != nil {
			s.logger.Warn("ignoring malformed deleted path", zap.String("path", p), zap.Error(err))
			continue
		}
		out = append(out, deletedObject{kind: k, id: id})
	}
	return out
}

// Closure implements Events.Closure.
func (s *session) Closure(ctx context.Context, cs snapshot.ChangeSet) ([]string, error) {
	deleted := make(map[ids.ID]bool)
	for _, d := range s.parseDeleted(cs.Deleted) {
		deleted[d.id] = true
	}
	return s.closure(ctx, cs.Updated, deleted)
}

func (s *session) closure(ctx context.Context, updated []string, deleted map[ids.ID]bool) ([]string, error) {
	full := snapshot.NewMemory()
	if err := s.store.LoadAll(ctx, full); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	b := closure.New(full, s.store.Prefix())

	// Containers are recreated whole, so losing a member means reloading
	// the container.
	b.AddMissingParents(deleted)

	diff := snapshot.NewMemory()
	if len(updated) > 0 {
		if err := s.store.LoadFiles(ctx, updated, diff); err != nil {
			return nil, fmt.Errorf("failed to load updated objects: %w", err)
		}
	}
	diff.Walk(func(o *snapshot.Object) bool {
		b.Expand(o.ID, closure.UseDependencies)
		return true
	})
	return b.Files(), nil
}

// Load implements Events.Load.
//
// The closure is computed before the replay opens, so a store failure never
// leaves the listener with an unterminated batch.
func (s *session) Load(ctx context.Context, cs snapshot.ChangeSet) (LoadStats, error) {
	s.logger.Info("Loading cache changes",
		zap.Int("updated", len(cs.Updated)),
		zap.Int("deleted", len(cs.Deleted)))
	start := time.Now()

	stats := LoadStats{Updated: len(cs.Updated)}
	removed := s.parseDeleted(cs.Deleted)
	deleted := make(map[ids.ID]bool, len(removed))
	for _, d := range removed {
		deleted[d.id] = true
	}
	files, err := s.closure(ctx, cs.Updated, deleted)
	if err != nil {
		return stats, err
	}
	stats.Files = len(files)

	if err := s.listener.VisitStart(); err != nil {
		return stats, err
	}
	replayErr := s.replay(ctx, removed, files, &stats)
	if err := s.listener.VisitEnd(); err != nil && replayErr == nil {
		replayErr = fmt.Errorf("failed to apply cache changes: %w", err)
	}
	if replayErr != nil {
		return stats, replayErr
	}
	if s.persist != nil {
		if err := s.persist(ctx); err != nil {
			return stats, err
		}
	}

	s.logger.Info("Cache changes loaded",
		zap.Int("files", stats.Files),
		zap.Int("deleted", stats.Deleted),
		zap.Duration("elapsed", time.Since(start)))
	return stats, nil
}

// replay streams deleted markers, then the closure, into the listener
// without its batch boundaries.
func (s *session) replay(ctx context.Context, removed []deletedObject, files []string, stats *LoadStats) error {
	inner := snapshot.SkipBoundaries(s.listener)
	for _, d := range removed {
		if err := inner.VisitDeleted(d.kind, d.id); err != nil {
			return fmt.Errorf("failed to replay deleted object %s: %w", d.id, err)
		}
		stats.Deleted++
	}
	if len(files) == 0 {
		return nil
	}
	if err := s.store.LoadFiles(ctx, files, inner); err != nil {
		return fmt.Errorf("failed to replay cache: %w", err)
	}
	return nil
}
