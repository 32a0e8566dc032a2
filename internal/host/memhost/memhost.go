// Package memhost is an in-memory live analysis database.
//
// DB implements host.Database for the sync engine and exposes a mutation API
// for analysts (and edit scripts). Every mutation reports a host.Change to the
// registered hooks: deletions and renames report before the change so the old
// identity can be recorded, creations and edits report after it.
package memhost

import (
	"sort"

	"github.com/yatools/yasync/internal/host"
)

// HandleBase is the first handle allocated for structures, members and
// enumerations. It sits far above any mapped address.
const HandleBase uint64 = 0xFF00000000000000

type funcEntry struct {
	fn     host.Func
	blocks []host.Block
}

type strucEntry struct {
	st      host.Struc
	frameOf uint64
}

// DB is an in-memory live database. It is not safe for concurrent use.
type DB struct {
	segments []host.Segment
	items    map[uint64]*host.Item
	funcs    map[uint64]*funcEntry
	strucs   map[uint64]*strucEntry
	enums    map[uint64]*host.Enum

	memberOwner     map[uint64]uint64
	enumMemberOwner map[uint64]uint64

	nextHandle uint64
	hooks      []func(host.Change)
	muted      int
}

// New returns an empty database.
func New() *DB {
	return &DB{
		items:           make(map[uint64]*host.Item),
		funcs:           make(map[uint64]*funcEntry),
		strucs:          make(map[uint64]*strucEntry),
		enums:           make(map[uint64]*host.Enum),
		memberOwner:     make(map[uint64]uint64),
		enumMemberOwner: make(map[uint64]uint64),
		nextHandle:      HandleBase,
	}
}

var _ host.Database = (*DB)(nil)

// OnChange registers a hook called for every mutation.
func (d *DB) OnChange(fn func(host.Change)) {
	d.hooks = append(d.hooks, fn)
}

// Mute suspends change hooks until the returned function is called.
// Replaying snapshot objects into the database uses it so that applied
// changes are not tracked as local edits.
func (d *DB) Mute() (restore func()) {
	d.muted++
	return func() { d.muted-- }
}

func (d *DB) emit(t host.ChangeType, target uint64) {
	if d.muted > 0 {
		return
	}
	c := host.Change{Type: t, Target: target}
	for _, fn := range d.hooks {
		fn(c)
	}
}

func (d *DB) allocHandle() uint64 {
	h := d.nextHandle
	d.nextHandle++
	return h
}

// ===================
// host.Database
// ===================

func (d *DB) Segment(ea uint64) (host.Segment, bool) {
	for _, s := range d.segments {
		if ea >= s.Start && ea < s.End {
			return s, true
		}
	}
	return host.Segment{}, false
}

func (d *DB) Segments() []host.Segment {
	return append([]host.Segment(nil), d.segments...)
}

func (d *DB) Flags(ea uint64) host.Flags {
	if it, ok := d.items[ea]; ok {
		return it.Flags
	}
	return 0
}

func (d *DB) Item(ea uint64) (host.Item, bool) {
	it, ok := d.items[ea]
	if !ok {
		return host.Item{}, false
	}
	return copyItem(it), true
}

func (d *DB) Items() []host.Item {
	out := make([]host.Item, 0, len(d.items))
	for _, it := range d.items {
		out = append(out, copyItem(it))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EA < out[j].EA })
	return out
}

func (d *DB) FuncAt(ea uint64) (host.Func, bool) {
	if e := d.funcContaining(ea); e != nil {
		return e.fn, true
	}
	return host.Func{}, false
}

func (d *DB) funcContaining(ea uint64) *funcEntry {
	if e, ok := d.funcs[ea]; ok {
		return e
	}
	for _, e := range d.funcs {
		if ea >= e.fn.Start && ea < e.fn.End {
			return e
		}
	}
	return nil
}

func (d *DB) Funcs() []host.Func {
	out := make([]host.Func, 0, len(d.funcs))
	for _, e := range d.funcs {
		out = append(out, e.fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (d *DB) FlowChart(ea uint64) []host.Block {
	e := d.funcContaining(ea)
	if e == nil {
		return nil
	}
	if len(e.blocks) == 0 {
		return []host.Block{{Start: e.fn.Start, End: e.fn.End}}
	}
	return append([]host.Block(nil), e.blocks...)
}

func (d *DB) FrameOf(ea uint64) (uint64, bool) {
	e := d.funcContaining(ea)
	if e == nil || e.fn.Frame == host.BadAddr {
		return host.BadAddr, false
	}
	if _, ok := d.strucs[e.fn.Frame]; !ok {
		return host.BadAddr, false
	}
	return e.fn.Frame, true
}

func (d *DB) FrameOwner(struc uint64) uint64 {
	if e, ok := d.strucs[struc]; ok {
		return e.frameOf
	}
	return host.BadAddr
}

func (d *DB) Struc(id uint64) (host.Struc, bool) {
	e, ok := d.strucs[id]
	if !ok {
		return host.Struc{}, false
	}
	return copyStruc(&e.st), true
}

func (d *DB) StrucName(id uint64) string {
	if e, ok := d.strucs[id]; ok {
		return e.st.Name
	}
	return ""
}

func (d *DB) Strucs() []host.Struc {
	out := make([]host.Struc, 0, len(d.strucs))
	for _, e := range d.strucs {
		if e.frameOf != host.BadAddr {
			continue
		}
		out = append(out, copyStruc(&e.st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *DB) MemberAt(struc uint64, offset int64) (host.Member, bool) {
	e, ok := d.strucs[struc]
	if !ok {
		return host.Member{}, false
	}
	for _, m := range e.st.Members {
		size := int64(m.Size)
		if size == 0 {
			size = 1
		}
		if offset >= m.Offset && offset < m.Offset+size {
			return m, true
		}
	}
	return host.Member{}, false
}

func (d *DB) MemberByID(id uint64) (host.Member, uint64, bool) {
	owner, ok := d.memberOwner[id]
	if !ok {
		return host.Member{}, host.BadAddr, false
	}
	for _, m := range d.strucs[owner].st.Members {
		if m.ID == id {
			return m, owner, true
		}
	}
	return host.Member{}, host.BadAddr, false
}

func (d *DB) Enum(id uint64) (host.Enum, bool) {
	e, ok := d.enums[id]
	if !ok {
		return host.Enum{}, false
	}
	return copyEnum(e), true
}

func (d *DB) EnumName(id uint64) string {
	if e, ok := d.enums[id]; ok {
		return e.Name
	}
	return ""
}

func (d *DB) Enums() []host.Enum {
	out := make([]host.Enum, 0, len(d.enums))
	for _, e := range d.enums {
		out = append(out, copyEnum(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *DB) EnumMemberName(id uint64) string {
	owner, ok := d.enumMemberOwner[id]
	if !ok {
		return ""
	}
	for _, m := range d.enums[owner].Members {
		if m.ID == id {
			return m.Name
		}
	}
	return ""
}

func (d *DB) EnumOfMember(id uint64) (uint64, bool) {
	owner, ok := d.enumMemberOwner[id]
	return owner, ok
}

// ===================
// Copy helpers
// ===================

func copyItem(it *host.Item) host.Item {
	c := *it
	c.Refs = append([]host.Ref(nil), it.Refs...)
	return c
}

func copyStruc(s *host.Struc) host.Struc {
	c := *s
	c.Members = append([]host.Member(nil), s.Members...)
	return c
}

func copyEnum(e *host.Enum) host.Enum {
	c := *e
	c.Members = append([]host.EnumMember(nil), e.Members...)
	return c
}
