package memhost

import (
	"fmt"
	"sort"

	"github.com/yatools/yasync/internal/host"
)

// ===================
// Segments and items
// ===================

// AddSegment maps [start, end).
func (d *DB) AddSegment(start, end uint64, name string) error {
	if end <= start {
		return ErrInvalidRange
	}
	for _, s := range d.segments {
		if start < s.End && s.Start < end {
			return fmt.Errorf("segment %s: %w", name, ErrOverlap)
		}
	}
	d.segments = append(d.segments, host.Segment{Start: start, End: end, Name: name})
	sort.Slice(d.segments, func(i, j int) bool { return d.segments[i].Start < d.segments[j].Start })
	return nil
}

// MakeCode turns the head at ea into code.
func (d *DB) MakeCode(ea, size uint64) error {
	if err := d.putItem(ea, size, host.FlagCode); err != nil {
		return err
	}
	d.emit(host.ChangeCode, ea)
	return nil
}

// MakeData turns the head at ea into data.
func (d *DB) MakeData(ea, size uint64) error {
	if err := d.putItem(ea, size, host.FlagData); err != nil {
		return err
	}
	d.emit(host.ChangeData, ea)
	return nil
}

func (d *DB) putItem(ea, size uint64, flags host.Flags) error {
	if _, ok := d.Segment(ea); !ok {
		return fmt.Errorf("address 0x%X is not mapped: %w", ea, ErrNotFound)
	}
	if size == 0 {
		size = 1
	}
	it, ok := d.items[ea]
	if !ok {
		it = &host.Item{EA: ea}
		d.items[ea] = it
	}
	it.Size = size
	it.Flags = flags
	return nil
}

// DeleteItem undefines the head at ea.
func (d *DB) DeleteItem(ea uint64) error {
	if _, ok := d.items[ea]; !ok {
		return fmt.Errorf("item 0x%X: %w", ea, ErrNotFound)
	}
	d.emit(host.ChangeLocation, ea)
	delete(d.items, ea)
	return nil
}

// SetName names a function start or an item.
func (d *DB) SetName(ea uint64, name string) error {
	if e, ok := d.funcs[ea]; ok {
		e.fn.Name = name
		d.emit(host.ChangeFunction, ea)
		return nil
	}
	it, ok := d.items[ea]
	if !ok {
		return fmt.Errorf("name at 0x%X: %w", ea, ErrNotFound)
	}
	it.Name = name
	d.emit(host.ChangeLocation, ea)
	return nil
}

// SetComment sets the comment of a function start or an item.
func (d *DB) SetComment(ea uint64, comment string) error {
	if e, ok := d.funcs[ea]; ok {
		e.fn.Comment = comment
		d.emit(host.ChangeFunction, ea)
		return nil
	}
	it, ok := d.items[ea]
	if !ok {
		return fmt.Errorf("comment at 0x%X: %w", ea, ErrNotFound)
	}
	it.Comment = comment
	d.emit(host.ChangeLocation, ea)
	return nil
}

// AddRef records an operand reference from the item at ea.
func (d *DB) AddRef(ea uint64, ref host.Ref) error {
	it, ok := d.items[ea]
	if !ok {
		return fmt.Errorf("ref from 0x%X: %w", ea, ErrNotFound)
	}
	it.Refs = append(it.Refs, ref)
	d.emit(host.ChangeLocation, ea)
	return nil
}

// ===================
// Functions
// ===================

// AddFunction creates a function over [start, end). Blocks may be empty, in
// which case the function is one block.
func (d *DB) AddFunction(start, end uint64, name string, blocks []host.Block) error {
	if end <= start {
		return ErrInvalidRange
	}
	if _, ok := d.Segment(start); !ok {
		return fmt.Errorf("function 0x%X is not mapped: %w", start, ErrNotFound)
	}
	for _, e := range d.funcs {
		if start < e.fn.End && e.fn.Start < end {
			return fmt.Errorf("function 0x%X: %w", start, ErrOverlap)
		}
	}
	d.funcs[start] = &funcEntry{
		fn:     host.Func{Start: start, End: end, Name: name, Frame: host.BadAddr},
		blocks: sortedBlocks(blocks),
	}
	d.emit(host.ChangeFunction, start)
	return nil
}

// SetBlocks replaces the control-flow partition of the function at start.
func (d *DB) SetBlocks(start uint64, blocks []host.Block) error {
	e, ok := d.funcs[start]
	if !ok {
		return fmt.Errorf("function 0x%X: %w", start, ErrNotFound)
	}
	d.emit(host.ChangeFunction, start)
	e.blocks = sortedBlocks(blocks)
	d.emit(host.ChangeFunction, start)
	return nil
}

// DeleteFunction removes the function at start and its frame.
func (d *DB) DeleteFunction(start uint64) error {
	e, ok := d.funcs[start]
	if !ok {
		return fmt.Errorf("function 0x%X: %w", start, ErrNotFound)
	}
	d.emit(host.ChangeFunction, start)
	if e.fn.Frame != host.BadAddr {
		d.dropStruc(e.fn.Frame)
	}
	delete(d.funcs, start)
	return nil
}

func sortedBlocks(blocks []host.Block) []host.Block {
	out := append([]host.Block(nil), blocks...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ===================
// Structures and frames
// ===================

// AddStruct creates a free-standing structure.
func (d *DB) AddStruct(name string) (uint64, error) {
	if name == "" {
		return host.BadAddr, fmt.Errorf("struct name is required")
	}
	if d.strucByName(name) != host.BadAddr {
		return host.BadAddr, fmt.Errorf("struct %s: %w", name, ErrExists)
	}
	id := d.allocHandle()
	d.strucs[id] = &strucEntry{st: host.Struc{ID: id, Name: name}, frameOf: host.BadAddr}
	d.emit(host.ChangeStruct, id)
	return id, nil
}

// AddFrame creates the stack frame of the function at start.
func (d *DB) AddFrame(start uint64) (uint64, error) {
	e, ok := d.funcs[start]
	if !ok {
		return host.BadAddr, fmt.Errorf("function 0x%X: %w", start, ErrNotFound)
	}
	if e.fn.Frame != host.BadAddr {
		return host.BadAddr, fmt.Errorf("frame of 0x%X: %w", start, ErrExists)
	}
	id := d.allocHandle()
	d.strucs[id] = &strucEntry{
		st:      host.Struc{ID: id, Name: fmt.Sprintf("$ frame %X", start)},
		frameOf: start,
	}
	e.fn.Frame = id
	d.emit(host.ChangeStruct, id)
	return id, nil
}

// RenameStruct renames a free-standing structure.
func (d *DB) RenameStruct(id uint64, name string) error {
	e, ok := d.strucs[id]
	if !ok {
		return fmt.Errorf("struct %X: %w", id, ErrNotFound)
	}
	if other := d.strucByName(name); other != host.BadAddr && other != id {
		return fmt.Errorf("struct %s: %w", name, ErrExists)
	}
	d.emit(host.ChangeStruct, id)
	e.st.Name = name
	d.emit(host.ChangeStruct, id)
	return nil
}

// DeleteStruct removes a structure. Deleting a frame detaches it from its
// function.
func (d *DB) DeleteStruct(id uint64) error {
	if _, ok := d.strucs[id]; !ok {
		return fmt.Errorf("struct %X: %w", id, ErrNotFound)
	}
	d.emit(host.ChangeStruct, id)
	d.dropStruc(id)
	return nil
}

func (d *DB) dropStruc(id uint64) {
	e, ok := d.strucs[id]
	if !ok {
		return
	}
	for _, m := range e.st.Members {
		delete(d.memberOwner, m.ID)
	}
	if e.frameOf != host.BadAddr {
		if f, ok := d.funcs[e.frameOf]; ok && f.fn.Frame == id {
			f.fn.Frame = host.BadAddr
		}
	}
	delete(d.strucs, id)
}

// AddMember adds a member at offset. typ is the handle of a structure or
// enumeration typing the member, 0 for none.
func (d *DB) AddMember(struc uint64, name string, offset int64, size uint64, typ uint64) (uint64, error) {
	e, ok := d.strucs[struc]
	if !ok {
		return host.BadAddr, fmt.Errorf("struct %X: %w", struc, ErrNotFound)
	}
	if size == 0 {
		size = 1
	}
	for _, m := range e.st.Members {
		if offset < m.Offset+int64(m.Size) && m.Offset < offset+int64(size) {
			return host.BadAddr, fmt.Errorf("member %s: %w", name, ErrOverlap)
		}
	}
	id := d.allocHandle()
	e.st.Members = append(e.st.Members, host.Member{ID: id, Name: name, Offset: offset, Size: size, Type: typ})
	sort.Slice(e.st.Members, func(i, j int) bool { return e.st.Members[i].Offset < e.st.Members[j].Offset })
	d.memberOwner[id] = struc
	d.emit(host.ChangeStruct, struc)
	return id, nil
}

// RenameMember renames a structure or frame member.
func (d *DB) RenameMember(member uint64, name string) error {
	owner, ok := d.memberOwner[member]
	if !ok {
		return fmt.Errorf("member %X: %w", member, ErrNotFound)
	}
	e := d.strucs[owner]
	for i := range e.st.Members {
		if e.st.Members[i].ID == member {
			e.st.Members[i].Name = name
		}
	}
	d.emit(host.ChangeStruct, owner)
	return nil
}

// DeleteMember removes the member of struc at offset.
func (d *DB) DeleteMember(struc uint64, offset int64) error {
	e, ok := d.strucs[struc]
	if !ok {
		return fmt.Errorf("struct %X: %w", struc, ErrNotFound)
	}
	for i, m := range e.st.Members {
		if m.Offset != offset {
			continue
		}
		d.emit(host.ChangeStruct, struc)
		e.st.Members = append(e.st.Members[:i], e.st.Members[i+1:]...)
		delete(d.memberOwner, m.ID)
		return nil
	}
	return fmt.Errorf("member at %d: %w", offset, ErrNotFound)
}

// StrucByName returns the handle of the free-standing structure name.
func (d *DB) StrucByName(name string) (uint64, bool) {
	id := d.strucByName(name)
	return id, id != host.BadAddr
}

func (d *DB) strucByName(name string) uint64 {
	for id, e := range d.strucs {
		if e.frameOf == host.BadAddr && e.st.Name == name {
			return id
		}
	}
	return host.BadAddr
}

// ===================
// Enumerations
// ===================

// AddEnum creates an enumeration.
func (d *DB) AddEnum(name string, bitfield bool) (uint64, error) {
	if name == "" {
		return host.BadAddr, fmt.Errorf("enum name is required")
	}
	if d.enumByName(name) != host.BadAddr {
		return host.BadAddr, fmt.Errorf("enum %s: %w", name, ErrExists)
	}
	id := d.allocHandle()
	d.enums[id] = &host.Enum{ID: id, Name: name, Bitfield: bitfield}
	d.emit(host.ChangeEnum, id)
	return id, nil
}

// RenameEnum renames an enumeration.
func (d *DB) RenameEnum(id uint64, name string) error {
	e, ok := d.enums[id]
	if !ok {
		return fmt.Errorf("enum %X: %w", id, ErrNotFound)
	}
	if other := d.enumByName(name); other != host.BadAddr && other != id {
		return fmt.Errorf("enum %s: %w", name, ErrExists)
	}
	d.emit(host.ChangeEnum, id)
	e.Name = name
	d.emit(host.ChangeEnum, id)
	return nil
}

// DeleteEnum removes an enumeration and its members.
func (d *DB) DeleteEnum(id uint64) error {
	e, ok := d.enums[id]
	if !ok {
		return fmt.Errorf("enum %X: %w", id, ErrNotFound)
	}
	d.emit(host.ChangeEnum, id)
	for _, m := range e.Members {
		delete(d.enumMemberOwner, m.ID)
	}
	delete(d.enums, id)
	return nil
}

// AddEnumMember adds a named constant.
func (d *DB) AddEnumMember(enum uint64, name string, value uint64) (uint64, error) {
	e, ok := d.enums[enum]
	if !ok {
		return host.BadAddr, fmt.Errorf("enum %X: %w", enum, ErrNotFound)
	}
	for _, m := range e.Members {
		if m.Name == name {
			return host.BadAddr, fmt.Errorf("enum member %s: %w", name, ErrExists)
		}
	}
	id := d.allocHandle()
	e.Members = append(e.Members, host.EnumMember{ID: id, Name: name, Value: value})
	d.enumMemberOwner[id] = enum
	d.emit(host.ChangeEnum, enum)
	return id, nil
}

// RenameEnumMember renames a named constant.
func (d *DB) RenameEnumMember(member uint64, name string) error {
	owner, ok := d.enumMemberOwner[member]
	if !ok {
		return fmt.Errorf("enum member %X: %w", member, ErrNotFound)
	}
	d.emit(host.ChangeEnum, member)
	e := d.enums[owner]
	for i := range e.Members {
		if e.Members[i].ID == member {
			e.Members[i].Name = name
		}
	}
	d.emit(host.ChangeEnum, member)
	return nil
}

// DeleteEnumMember removes a named constant.
func (d *DB) DeleteEnumMember(member uint64) error {
	owner, ok := d.enumMemberOwner[member]
	if !ok {
		return fmt.Errorf("enum member %X: %w", member, ErrNotFound)
	}
	d.emit(host.ChangeEnum, member)
	e := d.enums[owner]
	for i, m := range e.Members {
		if m.ID == member {
			e.Members = append(e.Members[:i], e.Members[i+1:]...)
			break
		}
	}
	delete(d.enumMemberOwner, member)
	return nil
}

// EnumByName returns the handle of the enumeration name.
func (d *DB) EnumByName(name string) (uint64, bool) {
	id := d.enumByName(name)
	return id, id != host.BadAddr
}

func (d *DB) enumByName(name string) uint64 {
	for id, e := range d.enums {
		if e.Name == name {
			return id
		}
	}
	return host.BadAddr
}

// EnumMemberByName returns the handle of member name in enum.
func (d *DB) EnumMemberByName(enum uint64, name string) (uint64, bool) {
	e, ok := d.enums[enum]
	if !ok {
		return host.BadAddr, false
	}
	for _, m := range e.Members {
		if m.Name == name {
			return m.ID, true
		}
	}
	return host.BadAddr, false
}
