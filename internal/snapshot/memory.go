package snapshot

import (
	"sort"

	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
)

// Key identifies an object within the store.
type Key struct {
	Kind kind.Kind
	ID   ids.ID
}

// Memory is an in-memory batch of objects and deleted markers.
//
// Objects are keyed by (kind, id). Visiting an object twice keeps the last
// one. An object that is both deleted and visited in the same batch exists at
// the end of the batch, whatever the order of the two calls.
type Memory struct {
	objects map[Key]*Object
	byID    map[ids.ID][]Key
	deleted map[Key]struct{}
}

// NewMemory returns an empty batch.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[Key]*Object),
		byID:    make(map[ids.ID][]Key),
		deleted: make(map[Key]struct{}),
	}
}

var _ Visitor = (*Memory)(nil)

func (m *Memory) VisitStart() error { return nil }
func (m *Memory) VisitEnd() error   { return nil }

func (m *Memory) VisitDeleted(k kind.Kind, id ids.ID) error {
	key := Key{Kind: k, ID: id}
	if _, ok := m.objects[key]; ok {
		return nil
	}
	m.deleted[key] = struct{}{}
	return nil
}

func (m *Memory) VisitObject(o *Object) error {
	key := Key{Kind: o.Kind, ID: o.ID}
	delete(m.deleted, key)
	if _, ok := m.objects[key]; !ok {
		m.byID[o.ID] = append(m.byID[o.ID], key)
	}
	m.objects[key] = o.Clone()
	return nil
}

// Get returns the object (k, id).
func (m *Memory) Get(k kind.Kind, id ids.ID) (*Object, bool) {
	o, ok := m.objects[Key{Kind: k, ID: id}]
	return o, ok
}

// Lookup returns every object with the given ID. Locations share one ID
// across the code, data and basic block kinds, so there may be several.
func (m *Memory) Lookup(id ids.ID) []*Object {
	keys := m.byID[id]
	out := make([]*Object, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.objects[k])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// IsDeleted reports whether (k, id) was deleted and not re-visited.
func (m *Memory) IsDeleted(k kind.Kind, id ids.ID) bool {
	_, ok := m.deleted[Key{Kind: k, ID: id}]
	return ok
}

// Len returns the number of objects.
func (m *Memory) Len() int { return len(m.objects) }

// Empty reports whether the batch holds neither objects nor deleted markers.
func (m *Memory) Empty() bool {
	return len(m.objects) == 0 && len(m.deleted) == 0
}

// Objects returns all objects ordered by kind then ID.
func (m *Memory) Objects() []*Object {
	keys := make([]Key, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sortKeys(keys)
	out := make([]*Object, len(keys))
	for i, k := range keys {
		out[i] = m.objects[k]
	}
	return out
}

// Deleted returns the deleted markers ordered by kind then ID.
func (m *Memory) Deleted() []Key {
	keys := make([]Key, 0, len(m.deleted))
	for k := range m.deleted {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Walk calls fn for every object until fn returns false.
func (m *Memory) Walk(fn func(*Object) bool) {
	for _, o := range m.Objects() {
		if !fn(o) {
			return
		}
	}
}

// Accept replays the batch into v: deleted markers first, then objects.
func (m *Memory) Accept(v Visitor) error {
	if err := v.VisitStart(); err != nil {
		return err
	}
	for _, k := range m.Deleted() {
		if err := v.VisitDeleted(k.Kind, k.ID); err != nil {
			return err
		}
	}
	for _, o := range m.Objects() {
		if err := v.VisitObject(o); err != nil {
			return err
		}
	}
	return v.VisitEnd()
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
}
