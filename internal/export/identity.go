package export

import (
	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
)

// StrucID returns the ID and kind of the structure or frame with the given
// handle, as derived from the current live state. funcEA is the owner of the
// frame, host.BadAddr for a free-standing structure.
func StrucID(db host.Database, handle, funcEA uint64) (ids.ID, kind.Kind) {
	if funcEA != host.BadAddr {
		return ids.Stack(funcEA), kind.StackFrame
	}
	return ids.Struc(db.StrucName(handle)), kind.Struct
}

// MemberKind returns the member kind matching a container kind.
func MemberKind(container kind.Kind) kind.Kind {
	if container == kind.StackFrame {
		return kind.StackFrameMember
	}
	return kind.StructMember
}

// LocationID classifies ea the way touches and saves do: a function
// containing ea wins over code, code wins over data. Anything else is
// kind.Unknown and must not be tracked.
func LocationID(db host.Database, ea uint64) (ids.ID, kind.Kind) {
	if _, ok := db.FuncAt(ea); ok {
		return ids.Function(ea), kind.Function
	}
	flags := db.Flags(ea)
	switch {
	case flags.IsCode():
		return ids.EA(ea), kind.Code
	case flags.IsData():
		return ids.EA(ea), kind.Data
	}
	return ids.EA(ea), kind.Unknown
}

// HandleID resolves the host handle of a structure, frame, member,
// enumeration or enumeration member to its current ID.
func HandleID(db host.Database, h uint64) (ids.ID, kind.Kind, bool) {
	if _, ok := db.Struc(h); ok {
		id, k := StrucID(db, h, db.FrameOwner(h))
		return id, k, true
	}
	if m, owner, ok := db.MemberByID(h); ok {
		parent, pk := StrucID(db, owner, db.FrameOwner(owner))
		return ids.Member(parent, m.Offset), MemberKind(pk), true
	}
	if _, ok := db.Enum(h); ok {
		return ids.Enum(db.EnumName(h)), kind.Enum, true
	}
	if e, ok := db.EnumOfMember(h); ok {
		return ids.EnumMember(ids.Enum(db.EnumName(e)), db.EnumMemberName(h)), kind.EnumMember, true
	}
	return ids.Zero, kind.Unknown, false
}

// AddressID returns the ID an operand pointing at ea refers to: the function
// starting there, or the plain location.
func AddressID(db host.Database, ea uint64) ids.ID {
	if f, ok := db.FuncAt(ea); ok && f.Start == ea {
		return ids.Function(ea)
	}
	return ids.EA(ea)
}

// RefID resolves an operand reference.
func RefID(db host.Database, r host.Ref) (ids.ID, bool) {
	if r.Handle != 0 {
		id, _, ok := HandleID(db, r.Handle)
		return id, ok
	}
	return AddressID(db, r.Address), true
}
