package memhost

import (
	"sort"

	"github.com/yatools/yasync/internal/export"
	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// ListenerStats counts what a replay did to the database.
type ListenerStats struct {
	Applied    int
	Deleted    int
	Unresolved int
}

// Listener replays a snapshot stream into the database.
//
// Calls are buffered until the outermost VisitEnd, then applied with change
// hooks muted: deleted markers first, then objects in dependency order so
// that containers exist before their members and every entity exists before
// references to it are resolved.
type Listener struct {
	db      *DB
	depth   int
	pending *snapshot.Memory
	stats   ListenerStats
}

// Listener returns a replay visitor bound to d.
func (d *DB) Listener() *Listener {
	return &Listener{db: d, pending: snapshot.NewMemory()}
}

var _ snapshot.Visitor = (*Listener)(nil)

// Stats returns the counters of the last applied batch.
func (l *Listener) Stats() ListenerStats { return l.stats }

func (l *Listener) VisitStart() error {
	if l.depth == 0 {
		l.pending = snapshot.NewMemory()
	}
	l.depth++
	return nil
}

func (l *Listener) VisitDeleted(k kind.Kind, id ids.ID) error {
	return l.pending.VisitDeleted(k, id)
}

func (l *Listener) VisitObject(o *snapshot.Object) error {
	return l.pending.VisitObject(o)
}

func (l *Listener) VisitEnd() error {
	if l.depth > 0 {
		l.depth--
	}
	if l.depth > 0 {
		return nil
	}
	l.apply()
	return nil
}

// applyOrder is the order objects are created in.
var applyOrder = []kind.Kind{
	kind.Enum, kind.EnumMember,
	kind.Struct, kind.StructMember,
	kind.Function, kind.StackFrame, kind.StackFrameMember,
	kind.BasicBlock, kind.Code, kind.Data,
}

func (l *Listener) apply() {
	restore := l.db.Mute()
	defer restore()

	l.stats = ListenerStats{}
	batch := l.pending
	l.pending = snapshot.NewMemory()

	idx := l.db.index()
	for _, key := range batch.Deleted() {
		if l.deleteKey(idx, key) {
			l.stats.Deleted++
		}
	}

	byKind := make(map[kind.Kind][]*snapshot.Object)
	for _, o := range batch.Objects() {
		byKind[o.Kind] = append(byKind[o.Kind], o)
	}
	done := make(map[snapshot.Key]bool)
	for _, k := range applyOrder {
		for _, o := range byKind[k] {
			key := snapshot.Key{Kind: o.Kind, ID: o.ID}
			if done[key] {
				continue
			}
			if l.applyObject(batch, o, done) {
				l.stats.Applied++
			} else {
				l.stats.Unresolved++
			}
			done[key] = true
		}
	}

	l.resolveRefs(batch)
}

// ===================
// Index of live IDs
// ===================

type target struct {
	addr   uint64
	handle uint64
	owner  uint64
	offset int64
}

func (d *DB) index() map[snapshot.Key]target {
	idx := make(map[snapshot.Key]target)
	for start, e := range d.funcs {
		idx[snapshot.Key{Kind: kind.Function, ID: ids.Function(start)}] = target{addr: start, handle: host.BadAddr}
		for _, b := range e.blocks {
			idx[snapshot.Key{Kind: kind.BasicBlock, ID: ids.EA(b.Start)}] = target{addr: b.Start, handle: host.BadAddr, owner: start}
		}
	}
	for ea, it := range d.items {
		k := kind.Data
		if it.Flags.IsCode() {
			k = kind.Code
		}
		idx[snapshot.Key{Kind: k, ID: ids.EA(ea)}] = target{addr: ea, handle: host.BadAddr}
	}
	for h, e := range d.strucs {
		id, k := export.StrucID(d, h, e.frameOf)
		idx[snapshot.Key{Kind: k, ID: id}] = target{addr: host.BadAddr, handle: h}
		mk := export.MemberKind(k)
		for _, m := range e.st.Members {
			idx[snapshot.Key{Kind: mk, ID: ids.Member(id, m.Offset)}] = target{addr: host.BadAddr, handle: m.ID, owner: h, offset: m.Offset}
		}
	}
	for h, e := range d.enums {
		id := ids.Enum(e.Name)
		idx[snapshot.Key{Kind: kind.Enum, ID: id}] = target{addr: host.BadAddr, handle: h}
		for _, m := range e.Members {
			idx[snapshot.Key{Kind: kind.EnumMember, ID: ids.EnumMember(id, m.Name)}] = target{addr: host.BadAddr, handle: m.ID, owner: h}
		}
	}
	return idx
}

func (l *Listener) deleteKey(idx map[snapshot.Key]target, key snapshot.Key) bool {
	t, ok := idx[key]
	if !ok {
		return false
	}
	d := l.db
	switch key.Kind {
	case kind.Function:
		return d.DeleteFunction(t.addr) == nil
	case kind.Code, kind.Data:
		return d.DeleteItem(t.addr) == nil
	case kind.BasicBlock:
		e, ok := d.funcs[t.owner]
		if !ok {
			return false
		}
		for i, b := range e.blocks {
			if b.Start == t.addr {
				e.blocks = append(e.blocks[:i], e.blocks[i+1:]...)
				return true
			}
		}
		return false
	case kind.Struct, kind.StackFrame:
		return d.DeleteStruct(t.handle) == nil
	case kind.StructMember, kind.StackFrameMember:
		return d.DeleteMember(t.owner, t.offset) == nil
	case kind.Enum:
		return d.DeleteEnum(t.handle) == nil
	case kind.EnumMember:
		return d.DeleteEnumMember(t.handle) == nil
	}
	return false
}

// ===================
// Object application
// ===================

func (l *Listener) applyObject(batch *snapshot.Memory, o *snapshot.Object, done map[snapshot.Key]bool) bool {
	v := o.Current()
	switch o.Kind {
	case kind.Enum:
		l.applyEnum(batch, o, v, done)
		return true
	case kind.EnumMember:
		return l.applyEnumMember(o, v)
	case kind.Struct:
		l.applyStruc(batch, o, v, host.BadAddr, done)
		return true
	case kind.StackFrame:
		if _, ok := l.db.funcs[v.Address]; !ok {
			return false
		}
		l.applyStruc(batch, o, v, v.Address, done)
		return true
	case kind.StructMember, kind.StackFrameMember:
		return l.applyMember(o, v)
	case kind.Function:
		l.applyFunc(batch, v, done)
		return true
	case kind.BasicBlock:
		return l.applyBlock(o, v)
	case kind.Code:
		l.applyItem(v, host.FlagCode)
		return true
	case kind.Data:
		l.applyItem(v, host.FlagData)
		return true
	}
	return false
}

func (l *Listener) applyEnum(batch *snapshot.Memory, o *snapshot.Object, v snapshot.Version, done map[snapshot.Key]bool) {
	d := l.db
	h := d.enumByName(v.Name)
	if h == host.BadAddr {
		h = d.allocHandle()
		d.enums[h] = &host.Enum{ID: h, Name: v.Name}
	}
	e := d.enums[h]
	e.Comment = v.Comment
	e.Bitfield = v.Attributes["bitfield"] == "true"

	old := make(map[string]uint64, len(e.Members))
	for _, m := range e.Members {
		old[m.Name] = m.ID
		delete(d.enumMemberOwner, m.ID)
	}
	members := make([]host.EnumMember, 0, len(v.Xrefs))
	for _, x := range v.Xrefs {
		mo, ok := batch.Get(kind.EnumMember, x.ID)
		if !ok {
			continue
		}
		mv := mo.Current()
		mh, ok := old[mv.Name]
		if !ok {
			mh = d.allocHandle()
		}
		members = append(members, host.EnumMember{ID: mh, Name: mv.Name, Value: mv.Value, Comment: mv.Comment})
		d.enumMemberOwner[mh] = h
		done[snapshot.Key{Kind: kind.EnumMember, ID: x.ID}] = true
	}
	e.Members = members
}

// applyEnumMember handles a member whose enumeration is not in the batch.
func (l *Listener) applyEnumMember(o *snapshot.Object, v snapshot.Version) bool {
	d := l.db
	for h, e := range d.enums {
		if ids.Enum(e.Name) != v.ParentID {
			continue
		}
		for i := range e.Members {
			if e.Members[i].Name == v.Name {
				e.Members[i].Value = v.Value
				e.Members[i].Comment = v.Comment
				return true
			}
		}
		mh := d.allocHandle()
		e.Members = append(e.Members, host.EnumMember{ID: mh, Name: v.Name, Value: v.Value, Comment: v.Comment})
		d.enumMemberOwner[mh] = h
		return true
	}
	return false
}

func (l *Listener) applyStruc(batch *snapshot.Memory, o *snapshot.Object, v snapshot.Version, funcEA uint64, done map[snapshot.Key]bool) {
	d := l.db
	var h uint64
	if funcEA != host.BadAddr {
		h = d.funcs[funcEA].fn.Frame
		if _, ok := d.strucs[h]; !ok {
			h = d.allocHandle()
			d.strucs[h] = &strucEntry{st: host.Struc{ID: h}, frameOf: funcEA}
			d.funcs[funcEA].fn.Frame = h
		}
		if v.Name != "" {
			d.strucs[h].st.Name = v.Name
		}
	} else {
		h = d.strucByName(v.Name)
		if h == host.BadAddr {
			h = d.allocHandle()
			d.strucs[h] = &strucEntry{st: host.Struc{ID: h, Name: v.Name}, frameOf: host.BadAddr}
		}
	}
	e := d.strucs[h]
	e.st.Comment = v.Comment

	mk := kind.StructMember
	if funcEA != host.BadAddr {
		mk = kind.StackFrameMember
	}
	old := make(map[int64]uint64, len(e.st.Members))
	for _, m := range e.st.Members {
		old[m.Offset] = m.ID
		delete(d.memberOwner, m.ID)
	}
	members := make([]host.Member, 0, len(v.Xrefs))
	for _, x := range v.Xrefs {
		mo, ok := batch.Get(mk, x.ID)
		if !ok {
			continue
		}
		mv := mo.Current()
		mh, ok := old[mv.Offset]
		if !ok {
			mh = d.allocHandle()
		}
		members = append(members, host.Member{ID: mh, Name: mv.Name, Offset: mv.Offset, Size: mv.Size, Comment: mv.Comment})
		d.memberOwner[mh] = h
		done[snapshot.Key{Kind: mk, ID: x.ID}] = true
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Offset < members[j].Offset })
	e.st.Members = members
}

// applyMember handles a member whose container is not in the batch.
func (l *Listener) applyMember(o *snapshot.Object, v snapshot.Version) bool {
	d := l.db
	for h, e := range d.strucs {
		id, _ := export.StrucID(d, h, e.frameOf)
		if id != v.ParentID {
			continue
		}
		for i := range e.st.Members {
			if e.st.Members[i].Offset == v.Offset {
				m := &e.st.Members[i]
				m.Name, m.Size, m.Comment = v.Name, v.Size, v.Comment
				return true
			}
		}
		mh := d.allocHandle()
		e.st.Members = append(e.st.Members, host.Member{ID: mh, Name: v.Name, Offset: v.Offset, Size: v.Size, Comment: v.Comment})
		sort.Slice(e.st.Members, func(i, j int) bool { return e.st.Members[i].Offset < e.st.Members[j].Offset })
		d.memberOwner[mh] = h
		return true
	}
	return false
}

func (l *Listener) applyFunc(batch *snapshot.Memory, v snapshot.Version, done map[snapshot.Key]bool) {
	d := l.db
	e, ok := d.funcs[v.Address]
	if !ok {
		e = &funcEntry{fn: host.Func{Start: v.Address, Frame: host.BadAddr}}
		d.funcs[v.Address] = e
	}
	e.fn.End = v.Address + v.Size
	e.fn.Name = v.Name
	e.fn.Comment = v.Comment

	var blocks []host.Block
	for _, x := range v.Xrefs {
		bo, ok := batch.Get(kind.BasicBlock, x.ID)
		if !ok {
			continue
		}
		bv := bo.Current()
		blocks = append(blocks, host.Block{Start: bv.Address, End: bv.Address + bv.Size})
		done[snapshot.Key{Kind: kind.BasicBlock, ID: x.ID}] = true
	}
	if len(blocks) > 0 {
		e.blocks = sortedBlocks(blocks)
	}
}

// applyBlock handles a block whose function is not in the batch.
func (l *Listener) applyBlock(o *snapshot.Object, v snapshot.Version) bool {
	for start, e := range l.db.funcs {
		if ids.Function(start) != v.ParentID {
			continue
		}
		blocks := make([]host.Block, 0, len(e.blocks)+1)
		for _, b := range e.blocks {
			if b.Start != v.Address {
				blocks = append(blocks, b)
			}
		}
		e.blocks = sortedBlocks(append(blocks, host.Block{Start: v.Address, End: v.Address + v.Size}))
		return true
	}
	return false
}

func (l *Listener) applyItem(v snapshot.Version, flags host.Flags) {
	it, ok := l.db.items[v.Address]
	if !ok {
		it = &host.Item{EA: v.Address}
		l.db.items[v.Address] = it
	}
	it.Size = v.Size
	if it.Size == 0 {
		it.Size = 1
	}
	it.Flags = flags
	it.Name = v.Name
	it.Comment = v.Comment
}

// ===================
// Reference resolution
// ===================

func (l *Listener) resolveRefs(batch *snapshot.Memory) {
	byID := make(map[ids.ID]target)
	for key, t := range l.db.index() {
		if prev, ok := byID[key.ID]; ok && prefer(prev) {
			continue
		}
		byID[key.ID] = t
	}
	ref := func(x snapshot.Xref) (host.Ref, bool) {
		t, ok := byID[x.ID]
		if !ok {
			l.stats.Unresolved++
			return host.Ref{}, false
		}
		if t.handle != host.BadAddr {
			return host.Ref{Operand: x.Operand, Handle: t.handle}, true
		}
		return host.Ref{Operand: x.Operand, Address: t.addr}, true
	}

	for _, o := range batch.Objects() {
		v := o.Current()
		switch o.Kind {
		case kind.Code, kind.Data:
			it, ok := l.db.items[v.Address]
			if !ok {
				continue
			}
			it.Refs = nil
			for _, x := range v.Xrefs {
				if r, ok := ref(x); ok {
					it.Refs = append(it.Refs, r)
				}
			}
		case kind.BasicBlock:
			cleared := make(map[uint64]bool)
			for _, x := range v.Xrefs {
				it, ok := l.db.items[uint64(x.Offset)]
				if !ok {
					continue
				}
				if !cleared[it.EA] {
					it.Refs = nil
					cleared[it.EA] = true
				}
				if r, ok := ref(x); ok {
					it.Refs = append(it.Refs, r)
				}
			}
		case kind.StructMember, kind.StackFrameMember:
			l.setMemberType(o, v, ref)
		}
	}
}

// prefer reports whether a target already in the reference index should be
// kept over another entity sharing its ID. Handles and plain addresses win
// over basic blocks.
func prefer(t target) bool {
	return t.owner == 0 || t.handle != host.BadAddr
}

func (l *Listener) setMemberType(o *snapshot.Object, v snapshot.Version, ref func(snapshot.Xref) (host.Ref, bool)) {
	for h, e := range l.db.strucs {
		id, _ := export.StrucID(l.db, h, e.frameOf)
		if id != v.ParentID {
			continue
		}
		for i := range e.st.Members {
			if e.st.Members[i].Offset != v.Offset {
				continue
			}
			e.st.Members[i].Type = 0
			for _, x := range v.Xrefs {
				if r, ok := ref(x); ok && r.Handle != 0 {
					e.st.Members[i].Type = r.Handle
				}
			}
		}
		return
	}
}
