package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// Save implements Events.Save.
func (s *session) Save(ctx context.Context) (SaveStats, error) {
	defer s.reset()

	s.logger.Info("Saving cache...")
	start := time.Now()
	stats := SaveStats{Touched: s.Pending().Total()}

	batch := snapshot.NewMemory()
	if err := s.reconcile(batch); err != nil {
		return stats, fmt.Errorf("failed to reconcile pending changes: %w", err)
	}
	stats.Written = batch.Len()
	stats.Deleted = len(batch.Deleted())

	if batch.Empty() {
		stats.Elapsed = time.Since(start)
		s.logger.Info("Nothing to save", zap.Int("touched", stats.Touched))
		return stats, nil
	}

	if err := s.store.Write(batch); err != nil {
		return stats, fmt.Errorf("failed to write cache: %w", err)
	}
	stats.Elapsed = time.Since(start)
	s.logger.Info("Cache saved",
		zap.Int("written", stats.Written),
		zap.Int("deleted", stats.Deleted),
		zap.Duration("elapsed", stats.Elapsed))

	stats.Committed = s.repo.CommitCache(ctx)
	if !stats.Committed {
		s.logger.Warn("An error occurred during commit, changes stay in the cache directory until the next commit")
	}
	return stats, nil
}

// Plan implements Events.Plan.
func (s *session) Plan(v snapshot.Visitor) error {
	batch := snapshot.NewMemory()
	if err := s.reconcile(batch); err != nil {
		return err
	}
	return batch.Accept(v)
}

// reconcile turns pending records into a batch of accepted objects and
// deleted markers.
func (s *session) reconcile(v snapshot.Visitor) error {
	if err := v.VisitStart(); err != nil {
		return err
	}
	if err := s.saveStrucs(v); err != nil {
		return err
	}
	if err := s.saveEnums(v); err != nil {
		return err
	}
	if err := s.saveLocations(v); err != nil {
		return err
	}
	return v.VisitEnd()
}

func (s *session) saveStrucs(v snapshot.Visitor) error {
	ex := s.exporter
	for _, id := range sortedIDs(s.strucs) {
		r := s.strucs[id]
		// Frames serialize through their function.
		if r.funcEA != host.BadAddr {
			if err := ex.AcceptFunction(v, r.funcEA); err != nil {
				return err
			}
		}
		switch {
		case s.validStruc(id, r):
			s.logger.Debug("struct accepted", zap.Stringer("id", id))
			if err := ex.AcceptStruct(v, r.funcEA, r.handle); err != nil {
				return err
			}
		case r.funcEA == host.BadAddr:
			s.logger.Debug("struct deleted", zap.Stringer("id", id))
			if err := ex.DeleteStruc(v, id); err != nil {
				return err
			}
			// Renamed: the handle still resolves under a new identity.
			if _, ok := s.db.Struc(r.handle); ok && s.db.FrameOwner(r.handle) == host.BadAddr {
				if err := ex.AcceptStruct(v, host.BadAddr, r.handle); err != nil {
					return err
				}
			}
		default:
			s.logger.Debug("stack deleted", zap.Stringer("id", id))
			if err := ex.DeleteStack(v, id); err != nil {
				return err
			}
		}
	}

	for _, id := range sortedIDs(s.strucMembers) {
		r := s.strucMembers[id]
		validParent := s.validStruc(r.parentID, r.struc)
		validMember := ids.Member(r.parentID, s.memberOffset(r)) == id
		if validParent && validMember {
			if err := ex.AcceptStruct(v, r.struc.funcEA, r.struc.handle); err != nil {
				return err
			}
			continue
		}

		s.logger.Debug("member deleted", zap.Stringer("id", id), zap.Stringer("parent", r.parentID))
		var err error
		if r.struc.funcEA == host.BadAddr {
			err = ex.DeleteStrucMember(v, id)
		} else {
			err = ex.DeleteStackMember(v, id)
		}
		if err != nil {
			return err
		}
		if err := s.reacceptParent(v, r.struc, validParent); err != nil {
			return err
		}
	}
	return nil
}

// reacceptParent re-serializes the container of a member that went away, so
// that the container no longer lists it.
func (s *session) reacceptParent(v snapshot.Visitor, r strucRecord, validParent bool) error {
	if r.funcEA != host.BadAddr {
		if !validParent {
			return nil
		}
		return s.exporter.AcceptStruct(v, r.funcEA, r.handle)
	}
	if _, ok := s.db.Struc(r.handle); !ok || s.db.FrameOwner(r.handle) != host.BadAddr {
		return nil
	}
	return s.exporter.AcceptStruct(v, host.BadAddr, r.handle)
}

func (s *session) saveEnums(v snapshot.Visitor) error {
	ex := s.exporter
	for _, id := range sortedIDs(s.enums) {
		handle := s.enums[id]
		if s.validEnum(id, handle) {
			s.logger.Debug("enum accepted", zap.Stringer("id", id))
			if err := ex.AcceptEnum(v, handle); err != nil {
				return err
			}
			continue
		}
		s.logger.Debug("enum deleted", zap.Stringer("id", id))
		if err := ex.DeleteEnum(v, id); err != nil {
			return err
		}
		if err := ex.AcceptEnum(v, handle); err != nil {
			return err
		}
	}

	for _, id := range sortedIDs(s.enumMembers) {
		r := s.enumMembers[id]
		if s.validEnumMember(id, r) {
			if err := ex.AcceptEnum(v, r.enum); err != nil {
				return err
			}
			continue
		}
		s.logger.Debug("enum member deleted", zap.Stringer("id", id), zap.Stringer("parent", r.parentID))
		if err := ex.DeleteEnumMember(v, id); err != nil {
			return err
		}
		if err := ex.AcceptEnum(v, r.enum); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) saveLocations(v snapshot.Visitor) error {
	for _, l := range s.sortedLocations() {
		ea := s.eas[l]
		var err error
		switch l.kind {
		case kind.Function:
			err = s.saveFunc(v, l.id, ea)
		case kind.Code:
			err = s.saveCode(v, l.id, ea)
		case kind.Data:
			err = s.saveData(v, l.id, ea)
		case kind.BasicBlock:
			err = s.saveBlock(v, l.id, ea)
		default:
			s.logger.Warn("unexpected pending location kind", zap.Stringer("kind", l.kind))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) saveFunc(v snapshot.Visitor, id ids.ID, ea uint64) error {
	ex := s.exporter
	_, isFunc := s.db.FuncAt(ea)
	if ids.Function(ea) != id || !isFunc {
		s.logger.Debug("function deleted", zap.String("ea", hexAddr(ea)))
		if err := ex.DeleteFunc(v, id); err != nil {
			return err
		}
		return ex.AcceptEA(v, ea)
	}

	eaID := ids.EA(ea)
	if err := ex.AcceptFunction(v, ea); err != nil {
		return err
	}
	if err := ex.DeleteCode(v, eaID); err != nil {
		return err
	}
	return ex.DeleteData(v, eaID)
}

func (s *session) saveCode(v snapshot.Visitor, id ids.ID, ea uint64) error {
	ex := s.exporter
	got := ids.EA(ea)
	_, inFunc := s.db.FuncAt(ea)
	codeNotFunc := s.db.Flags(ea).IsCode() && !inFunc
	if got != id || !codeNotFunc {
		s.logger.Debug("code deleted", zap.String("ea", hexAddr(ea)))
		if err := ex.DeleteCode(v, id); err != nil {
			return err
		}
		return ex.AcceptEA(v, ea)
	}

	if err := ex.AcceptEA(v, ea); err != nil {
		return err
	}
	if err := ex.DeleteFunc(v, ids.Function(ea)); err != nil {
		return err
	}
	return ex.DeleteData(v, got)
}

func (s *session) saveData(v snapshot.Visitor, id ids.ID, ea uint64) error {
	ex := s.exporter
	got := ids.EA(ea)
	if got != id || !s.db.Flags(ea).IsData() {
		s.logger.Debug("data deleted", zap.String("ea", hexAddr(ea)))
		if err := ex.DeleteData(v, id); err != nil {
			return err
		}
		return ex.AcceptEA(v, ea)
	}

	if err := ex.AcceptEA(v, ea); err != nil {
		return err
	}
	if err := ex.DeleteFunc(v, ids.Function(ea)); err != nil {
		return err
	}
	return ex.DeleteCode(v, got)
}

func (s *session) saveBlock(v snapshot.Visitor, id ids.ID, ea uint64) error {
	_, inFunc := s.db.FuncAt(ea)
	if ids.EA(ea) != id || !inFunc {
		s.logger.Debug("block deleted", zap.String("ea", hexAddr(ea)))
		return s.exporter.DeleteBlock(v, id)
	}
	return s.exporter.AcceptEA(v, ea)
}
