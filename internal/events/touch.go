package events

import (
	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
)

// addLocation records a location unless (id, kind) is already pending.
func (s *session) addLocation(id ids.ID, k kind.Kind, ea uint64) bool {
	key := location{id: id, kind: k}
	if _, ok := s.eas[key]; ok {
		return false
	}
	s.eas[key] = ea
	return true
}

// TouchLocation implements Events.TouchLocation.
func (s *session) TouchLocation(ea uint64) {
	id, k := s.classify(ea)
	if k == kind.Unknown {
		return
	}
	if s.addLocation(id, k, ea) {
		s.mark(ea, "modified")
	}
}

// TouchFunction implements Events.TouchFunction.
func (s *session) TouchFunction(ea uint64) {
	if s.addLocation(ids.Function(ea), kind.Function, ea) {
		s.mark(ea, "modified")
	}

	if frame, ok := s.db.FrameOf(ea); ok {
		s.updateStruc(frame)
	}

	fn, ok := s.db.FuncAt(ea)
	if !ok {
		return
	}
	for _, b := range s.db.FlowChart(fn.Start) {
		s.addLocation(ids.EA(b.Start), kind.BasicBlock, b.Start)
	}
}

// TouchCode implements Events.TouchCode.
func (s *session) TouchCode(ea uint64) {
	if s.addLocation(ids.EA(ea), kind.Code, ea) {
		s.mark(ea, "modified")
	}
}

// TouchData implements Events.TouchData.
func (s *session) TouchData(ea uint64) {
	if s.addLocation(ids.EA(ea), kind.Data, ea) {
		s.mark(ea, "modified")
	}
}

// TouchStruct implements Events.TouchStruct.
func (s *session) TouchStruct(handle uint64) {
	if funcEA := s.updateStruc(handle); funcEA != host.BadAddr {
		s.TouchFunction(funcEA)
	}
}

// updateStruc records a structure and its members and returns the owner
// function of a frame, host.BadAddr otherwise.
func (s *session) updateStruc(handle uint64) uint64 {
	s.mark(handle, "modified")
	funcEA := s.db.FrameOwner(handle)
	id := s.strucID(handle, funcEA)
	rec := strucRecord{handle: handle, funcEA: funcEA}
	if _, ok := s.strucs[id]; !ok {
		s.strucs[id] = rec
	}

	st, ok := s.db.Struc(handle)
	if !ok {
		return funcEA
	}
	for _, m := range st.Members {
		mid := ids.Member(id, m.Offset)
		if _, ok := s.strucMembers[mid]; ok {
			continue
		}
		s.strucMembers[mid] = strucMemberRecord{parentID: id, struc: rec, offset: m.Offset}
	}
	return funcEA
}

// TouchEnum implements Events.TouchEnum.
func (s *session) TouchEnum(handle uint64) {
	s.mark(handle, "modified")
	if parent, ok := s.db.EnumOfMember(handle); ok {
		handle = parent
	}

	id := ids.Enum(s.db.EnumName(handle))
	if _, ok := s.enums[id]; !ok {
		s.enums[id] = handle
	}
	if en, ok := s.db.Enum(handle); ok {
		for _, m := range en.Members {
			mid := ids.EnumMember(id, m.Name)
			if _, ok := s.enumMembers[mid]; !ok {
				s.enumMembers[mid] = enumMemberRecord{parentID: id, enum: handle, member: m.ID}
			}
			s.mark(m.ID, "updated")
		}
	}
	s.mark(handle, "updated")
}
