package events

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/yatools/yasync/internal/export"
	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// Config wires a Session to its collaborators.
type Config struct {
	DB       host.Database
	Repo     Repository
	Store    Store
	Listener snapshot.Visitor
	// Persist, if set, runs after every successful Load. A Persist error
	// fails the Load.
	Persist func(ctx context.Context) error
	Logger  *zap.Logger
}

// location is a touched function, code, data or basic block.
type location struct {
	id   ids.ID
	kind kind.Kind
}

// strucRecord remembers a structure by host handle. funcEA is the owner
// function of a frame, host.BadAddr for a free-standing structure.
type strucRecord struct {
	handle uint64
	funcEA uint64
}

type strucMemberRecord struct {
	parentID ids.ID
	struc    strucRecord
	offset   int64
}

type enumMemberRecord struct {
	parentID ids.ID
	enum     uint64
	member   uint64
}

type session struct {
	db       host.Database
	repo     Repository
	store    Store
	listener snapshot.Visitor
	persist  func(ctx context.Context) error
	exporter *export.Exporter
	logger   *zap.Logger

	eas          map[location]uint64
	strucs       map[ids.ID]strucRecord
	strucMembers map[ids.ID]strucMemberRecord
	enums        map[ids.ID]uint64
	enumMembers  map[ids.ID]enumMemberRecord
}

// New creates a Session.
//
// If cfg.Logger is nil, logging is discarded.
func New(cfg Config) Events {
	s := &session{
		db:       cfg.DB,
		repo:     cfg.Repo,
		store:    cfg.Store,
		listener: cfg.Listener,
		persist:  cfg.Persist,
		exporter: export.New(cfg.DB),
		logger:   cfg.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.reset()
	return s
}

func (s *session) reset() {
	s.eas = make(map[location]uint64)
	s.strucs = make(map[ids.ID]strucRecord)
	s.strucMembers = make(map[ids.ID]strucMemberRecord)
	s.enums = make(map[ids.ID]uint64)
	s.enumMembers = make(map[ids.ID]enumMemberRecord)
}

// Pending implements Events.Pending.
func (s *session) Pending() Pending {
	return Pending{
		Locations:    len(s.eas),
		Strucs:       len(s.strucs),
		StrucMembers: len(s.strucMembers),
		Enums:        len(s.enums),
		EnumMembers:  len(s.enumMembers),
	}
}

// Notify implements Events.Notify.
func (s *session) Notify(c host.Change) {
	switch c.Type {
	case host.ChangeLocation:
		s.TouchLocation(c.Target)
	case host.ChangeFunction:
		s.TouchFunction(c.Target)
	case host.ChangeCode:
		s.TouchCode(c.Target)
	case host.ChangeData:
		s.TouchData(c.Target)
	case host.ChangeStruct:
		s.TouchStruct(c.Target)
	case host.ChangeEnum:
		s.TouchEnum(c.Target)
	default:
		s.logger.Debug("ignoring unknown host change", zap.Stringer("type", c.Type))
	}
}

// Sorted views of the pending containers keep Save deterministic.

func sortedIDs[V any](m map[ids.ID]V) []ids.ID {
	out := make([]ids.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *session) sortedLocations() []location {
	out := make([]location, 0, len(s.eas))
	for l := range s.eas {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].id != out[j].id {
			return out[i].id < out[j].id
		}
		return out[i].kind < out[j].kind
	})
	return out
}
