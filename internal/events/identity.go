package events

import (
	"github.com/yatools/yasync/internal/export"
	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
)

// classify decides what ea currently is. It is evaluated fresh at touch time
// and again at save time; the answer is never cached across a cycle.
func (s *session) classify(ea uint64) (ids.ID, kind.Kind) {
	return export.LocationID(s.db, ea)
}

// strucID derives the identity of a structure or frame from live state.
func (s *session) strucID(handle, funcEA uint64) ids.ID {
	id, _ := export.StrucID(s.db, handle, funcEA)
	return id
}

// validStruc reports whether a remembered structure still has identity id.
// A frame is valid while its handle is still the frame of the same function.
// A free structure must still exist and still hash to id under its current
// name.
func (s *session) validStruc(id ids.ID, r strucRecord) bool {
	if r.funcEA != host.BadAddr {
		return s.db.FrameOwner(r.handle) == r.funcEA
	}
	if _, ok := s.db.Struc(r.handle); !ok {
		return false
	}
	return ids.Struc(s.db.StrucName(r.handle)) == id
}

// memberOffset returns the offset of the member at the remembered offset,
// -1 if there is none. Frame members are looked up through the owner's
// current frame.
func (s *session) memberOffset(r strucMemberRecord) int64 {
	handle := r.struc.handle
	if r.struc.funcEA != host.BadAddr {
		frame, ok := s.db.FrameOf(r.struc.funcEA)
		if !ok {
			return -1
		}
		handle = frame
	}
	m, ok := s.db.MemberAt(handle, r.offset)
	if !ok {
		return -1
	}
	return m.Offset
}

// validEnum reports whether enumeration handle still exists under id.
func (s *session) validEnum(id ids.ID, handle uint64) bool {
	if _, ok := s.db.Enum(handle); !ok {
		return false
	}
	return ids.Enum(s.db.EnumName(handle)) == id
}

// validEnumMember checks the member's own identity and the identity of its
// parent, both re-derived from current names.
func (s *session) validEnumMember(id ids.ID, r enumMemberRecord) bool {
	parentID := ids.Enum(s.db.EnumName(r.enum))
	got := ids.EnumMember(parentID, s.db.EnumMemberName(r.member))
	_, ok := s.db.EnumOfMember(r.member)
	return ok && got == id && parentID == r.parentID
}
