package events

import (
	"fmt"
	"strings"

	"github.com/yatools/yasync/internal/host"
)

func hexAddr(ea uint64) string {
	return fmt.Sprintf("0x%X", ea)
}

func (s *session) framePrefix(frame uint64) string {
	return hexAddr(s.db.FrameOwner(frame)) + ": stack "
}

func (s *session) strucPrefix(handle uint64) string {
	if s.db.FrameOwner(handle) != host.BadAddr {
		return s.framePrefix(handle)
	}
	name := s.db.StrucName(handle)
	if name == "" {
		return ""
	}
	return "struc " + name + ": "
}

func (s *session) memberPrefix(struc uint64, m host.Member) string {
	name := strings.TrimLeft(m.Name, " ")
	if s.db.FrameOwner(struc) != host.BadAddr {
		prefix := s.framePrefix(struc)
		if name == "" {
			return prefix
		}
		return prefix + "." + name + ": "
	}
	prefix := s.strucPrefix(struc)
	if prefix == "" || name == "" {
		return prefix
	}
	return strings.TrimSuffix(prefix, ": ") + "." + name + ": "
}

func (s *session) enumPrefix(handle uint64) string {
	name := s.db.EnumName(handle)
	if name == "" {
		return ""
	}
	return "enum " + name + ": "
}

func (s *session) enumMemberPrefix(enum, member uint64) string {
	prefix := s.enumPrefix(enum)
	name := s.db.EnumMemberName(member)
	if prefix == "" || name == "" {
		return ""
	}
	return strings.TrimSuffix(prefix, ": ") + "." + name + ": "
}

// markerPrefix describes what h is: a structure, a member, an enumeration,
// an enumeration member or a mapped address. It returns "" for anything
// else.
func (s *session) markerPrefix(h uint64) string {
	if h == host.BadAddr {
		return ""
	}
	if _, ok := s.db.Struc(h); ok {
		return s.strucPrefix(h)
	}
	if m, owner, ok := s.db.MemberByID(h); ok {
		return s.memberPrefix(owner, m)
	}
	if _, ok := s.db.Enum(h); ok {
		return s.enumPrefix(h)
	}
	if e, ok := s.db.EnumOfMember(h); ok {
		return s.enumMemberPrefix(e, h)
	}
	if _, ok := s.db.Segment(h); !ok {
		return ""
	}
	return hexAddr(h) + ": "
}

// mark leaves a change marker on the pending commit message. Entities that
// cannot be described are not marked; tracking goes on regardless.
func (s *session) mark(h uint64, msg string) {
	prefix := s.markerPrefix(h)
	if prefix == "" || s.repo == nil {
		return
	}
	s.repo.AddComment(prefix + msg)
}
