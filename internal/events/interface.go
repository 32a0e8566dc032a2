package events

import (
	"context"
	"time"

	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/snapshot"
)

// Events tracks live mutations and synchronizes them with the snapshot store.
type Events interface {
	// TouchStruct records a structure or stack frame and all of its current
	// members. Touching a frame also touches its owner function.
	TouchStruct(handle uint64)

	// TouchEnum records an enumeration and all of its current members. The
	// handle may name a member, in which case its enumeration is touched.
	TouchEnum(handle uint64)

	// TouchFunction records the function containing ea, its basic blocks
	// and its stack frame.
	TouchFunction(ea uint64)

	// TouchCode records ea as code.
	TouchCode(ea uint64)

	// TouchData records ea as data.
	TouchData(ea uint64)

	// TouchLocation classifies ea and records it as a function, code or
	// data. Unclassified addresses are ignored.
	TouchLocation(ea uint64)

	// Notify dispatches a host change to the matching Touch call. It has the
	// signature of a host change hook.
	Notify(c host.Change)

	// Pending returns the number of records per pending container.
	Pending() Pending

	// Save reconciles pending records into the store and commits the cache.
	//
	// The returned error covers store failures only. A failed commit is
	// reported through SaveStats.Committed and a warning in the log.
	// Pending records are cleared in every case.
	Save(ctx context.Context) (SaveStats, error)

	// Plan streams into v the batch Save would write for the pending
	// records: deleted markers, then objects. The store and the pending
	// records are left alone.
	Plan(v snapshot.Visitor) error

	// Update fetches external changes from the repository and loads them.
	// Updated paths outside the cache directory are dropped. The pulled
	// revision is confirmed only after the load, so a failed load is
	// retried by the next Update.
	Update(ctx context.Context) (LoadStats, error)

	// Load replays a change set into the live database: deleted markers
	// first, then the dependency closure of the updated objects. The closure
	// is streamed in path order inside one batch; the listener is expected
	// to buffer the batch and create objects in dependency order.
	Load(ctx context.Context, cs snapshot.ChangeSet) (LoadStats, error)

	// Closure returns the object paths Load would replay for cs, without
	// touching the live database.
	Closure(ctx context.Context, cs snapshot.ChangeSet) ([]string, error)
}

// Repository is the version-control side of the cache.
type Repository interface {
	// AddComment appends a line to the message of the next cache commit.
	AddComment(msg string)

	// CommitCache commits and publishes the cache directory. It returns
	// false when committing or publishing failed.
	CommitCache(ctx context.Context) bool

	// UpdateCache pulls remote changes and reports the store paths changed
	// since the last synchronization.
	UpdateCache(ctx context.Context) (snapshot.ChangeSet, error)

	// ConfirmUpdate marks the revision behind the last UpdateCache as
	// synchronized. Until then UpdateCache keeps reporting its changes.
	ConfirmUpdate() error
}

// Store is the persisted snapshot store.
type Store interface {
	// Prefix returns the cache directory relative to the repository root.
	Prefix() string
	// Write persists a batch.
	Write(m *snapshot.Memory) error
	// LoadAll replays every stored object into v.
	LoadAll(ctx context.Context, v snapshot.Visitor) error
	// LoadFiles replays the objects at the given paths into v.
	LoadFiles(ctx context.Context, files []string, v snapshot.Visitor) error
}

// Pending counts pending records.
type Pending struct {
	Locations    int
	Strucs       int
	StrucMembers int
	Enums        int
	EnumMembers  int
}

// Total returns the number of pending records.
func (p Pending) Total() int {
	return p.Locations + p.Strucs + p.StrucMembers + p.Enums + p.EnumMembers
}

// SaveStats describes one Save.
type SaveStats struct {
	Touched   int
	Written   int
	Deleted   int
	Committed bool
	Elapsed   time.Duration
}

// LoadStats describes one Load.
type LoadStats struct {
	Deleted int
	Updated int
	Files   int
}
