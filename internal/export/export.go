// Package export serializes live entities into snapshot objects.
//
// An Exporter reads the live database and emits objects to a
// snapshot.Visitor. Accept methods emit the current state of an entity and
// everything that travels with it: a function brings its blocks and frame, a
// container brings all of its members. Delete methods emit deleted markers
// for remembered IDs and never consult the live database.
package export

import (
	"strconv"

	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// Exporter emits snapshot objects from a live database.
type Exporter struct {
	db host.Database
}

// New returns an Exporter reading db.
func New(db host.Database) *Exporter {
	return &Exporter{db: db}
}

// AcceptFunction emits the function containing ea with its blocks and frame.
// It emits nothing if ea is not inside a function.
func (e *Exporter) AcceptFunction(v snapshot.Visitor, ea uint64) error {
	fn, ok := e.db.FuncAt(ea)
	if !ok {
		return nil
	}
	fid := ids.Function(fn.Start)
	ver := snapshot.Version{
		Address: fn.Start,
		Size:    fn.End - fn.Start,
		Name:    fn.Name,
		Comment: fn.Comment,
	}
	blocks := e.db.FlowChart(fn.Start)
	for _, b := range blocks {
		ver.Xrefs = append(ver.Xrefs, snapshot.Xref{Offset: int64(b.Start - fn.Start), ID: ids.EA(b.Start)})
	}
	frame, hasFrame := e.db.FrameOf(fn.Start)
	if hasFrame {
		ver.Xrefs = append(ver.Xrefs, snapshot.Xref{ID: ids.Stack(fn.Start)})
	}
	if err := v.VisitObject(&snapshot.Object{ID: fid, Kind: kind.Function, Versions: []snapshot.Version{ver}}); err != nil {
		return err
	}
	for _, b := range blocks {
		if err := v.VisitObject(e.block(fid, b)); err != nil {
			return err
		}
	}
	if hasFrame {
		return e.AcceptStruct(v, fn.Start, frame)
	}
	return nil
}

func (e *Exporter) block(parent ids.ID, b host.Block) *snapshot.Object {
	ver := snapshot.Version{ParentID: parent, Address: b.Start, Size: b.End - b.Start}
	for _, it := range e.db.Items() {
		if it.EA < b.Start || it.EA >= b.End {
			continue
		}
		ver.Xrefs = append(ver.Xrefs, e.refs(it)...)
	}
	return &snapshot.Object{ID: ids.EA(b.Start), Kind: kind.BasicBlock, Versions: []snapshot.Version{ver}}
}

func (e *Exporter) refs(it host.Item) []snapshot.Xref {
	var out []snapshot.Xref
	for _, r := range it.Refs {
		id, ok := RefID(e.db, r)
		if !ok {
			continue
		}
		out = append(out, snapshot.Xref{Offset: int64(it.EA), Operand: r.Operand, ID: id})
	}
	return out
}

// AcceptStruct emits a structure, or the frame of funcEA when funcEA is not
// host.BadAddr, together with all of its members.
func (e *Exporter) AcceptStruct(v snapshot.Visitor, funcEA, handle uint64) error {
	st, ok := e.db.Struc(handle)
	if !ok {
		return nil
	}
	id, k := StrucID(e.db, handle, funcEA)
	mk := MemberKind(k)
	ver := snapshot.Version{Name: st.Name, Comment: st.Comment}
	if k == kind.StackFrame {
		ver.Address = funcEA
	}
	members := make([]*snapshot.Object, 0, len(st.Members))
	for _, m := range st.Members {
		mid := ids.Member(id, m.Offset)
		ver.Xrefs = append(ver.Xrefs, snapshot.Xref{Offset: m.Offset, ID: mid})
		mv := snapshot.Version{
			ParentID: id,
			Offset:   m.Offset,
			Size:     m.Size,
			Name:     m.Name,
			Comment:  m.Comment,
		}
		if m.Type != 0 {
			if tid, _, ok := HandleID(e.db, m.Type); ok {
				mv.Xrefs = append(mv.Xrefs, snapshot.Xref{ID: tid})
			}
		}
		members = append(members, &snapshot.Object{ID: mid, Kind: mk, Versions: []snapshot.Version{mv}})
	}
	if err := v.VisitObject(&snapshot.Object{ID: id, Kind: k, Versions: []snapshot.Version{ver}}); err != nil {
		return err
	}
	for _, o := range members {
		if err := v.VisitObject(o); err != nil {
			return err
		}
	}
	return nil
}

// AcceptEnum emits an enumeration with all of its members.
func (e *Exporter) AcceptEnum(v snapshot.Visitor, handle uint64) error {
	en, ok := e.db.Enum(handle)
	if !ok {
		return nil
	}
	id := ids.Enum(en.Name)
	ver := snapshot.Version{Name: en.Name, Comment: en.Comment}
	if en.Bitfield {
		ver.Attributes = map[string]string{"bitfield": strconv.FormatBool(true)}
	}
	members := make([]*snapshot.Object, 0, len(en.Members))
	for _, m := range en.Members {
		mid := ids.EnumMember(id, m.Name)
		ver.Xrefs = append(ver.Xrefs, snapshot.Xref{ID: mid})
		members = append(members, &snapshot.Object{
			ID:   mid,
			Kind: kind.EnumMember,
			Versions: []snapshot.Version{{
				ParentID: id,
				Name:     m.Name,
				Value:    m.Value,
				Comment:  m.Comment,
			}},
		})
	}
	if err := v.VisitObject(&snapshot.Object{ID: id, Kind: kind.Enum, Versions: []snapshot.Version{ver}}); err != nil {
		return err
	}
	for _, o := range members {
		if err := v.VisitObject(o); err != nil {
			return err
		}
	}
	return nil
}

// AcceptEA emits whatever ea currently is: the function starting there, the
// block of a function starting there, or a code or data head. Addresses that
// are none of these emit nothing.
func (e *Exporter) AcceptEA(v snapshot.Visitor, ea uint64) error {
	if fn, ok := e.db.FuncAt(ea); ok {
		if fn.Start == ea {
			return e.AcceptFunction(v, ea)
		}
		for _, b := range e.db.FlowChart(ea) {
			if b.Start == ea {
				return v.VisitObject(e.block(ids.Function(fn.Start), b))
			}
		}
		return nil
	}
	it, ok := e.db.Item(ea)
	if !ok {
		return nil
	}
	var k kind.Kind
	switch {
	case it.Flags.IsCode():
		k = kind.Code
	case it.Flags.IsData():
		k = kind.Data
	default:
		return nil
	}
	return v.VisitObject(&snapshot.Object{
		ID:   ids.EA(ea),
		Kind: k,
		Versions: []snapshot.Version{{
			Address: ea,
			Size:    it.Size,
			Name:    it.Name,
			Comment: it.Comment,
			Xrefs:   e.refs(it),
		}},
	})
}

// AcceptAll emits every entity of the live database.
func (e *Exporter) AcceptAll(v snapshot.Visitor) error {
	for _, en := range e.db.Enums() {
		if err := e.AcceptEnum(v, en.ID); err != nil {
			return err
		}
	}
	for _, st := range e.db.Strucs() {
		if err := e.AcceptStruct(v, host.BadAddr, st.ID); err != nil {
			return err
		}
	}
	for _, fn := range e.db.Funcs() {
		if err := e.AcceptFunction(v, fn.Start); err != nil {
			return err
		}
	}
	for _, it := range e.db.Items() {
		if _, ok := e.db.FuncAt(it.EA); ok {
			continue
		}
		if err := e.AcceptEA(v, it.EA); err != nil {
			return err
		}
	}
	return nil
}

// Deleted markers. Each names one object; containers and their members are
// deleted one by one.

// DeleteFunc marks the function id as gone. Its blocks and frame are
// deleted separately.
func (e *Exporter) DeleteFunc(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.Function, id)
}

// DeleteCode marks the code item id as gone.
func (e *Exporter) DeleteCode(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.Code, id)
}

// DeleteData marks the data item id as gone.
func (e *Exporter) DeleteData(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.Data, id)
}

// DeleteBlock marks the basic block id as gone.
func (e *Exporter) DeleteBlock(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.BasicBlock, id)
}

// DeleteStruc marks the free-standing structure id as gone.
func (e *Exporter) DeleteStruc(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.Struct, id)
}

// DeleteStack marks the stack frame id as gone.
func (e *Exporter) DeleteStack(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.StackFrame, id)
}

// DeleteStrucMember marks a member of a free-standing structure as gone.
func (e *Exporter) DeleteStrucMember(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.StructMember, id)
}

// DeleteStackMember marks a member of a stack frame as gone.
func (e *Exporter) DeleteStackMember(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.StackFrameMember, id)
}

// DeleteEnum marks the enumeration id as gone.
func (e *Exporter) DeleteEnum(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.Enum, id)
}

// DeleteEnumMember marks the enumeration member id as gone.
func (e *Exporter) DeleteEnumMember(v snapshot.Visitor, id ids.ID) error {
	return v.VisitDeleted(kind.EnumMember, id)
}
