// Package ids derives content-addressed identifiers for analysis entities.
//
// An ID is a pure function of an entity's semantic description (kind, name,
// address, owner, offset) at the time it is observed. The same description
// always yields the same ID, across processes and machines, which is what lets
// the snapshot store name one file per object.
//
// IDs are not stable handles: a rename or a move changes the description and
// therefore the ID. Callers that remember an ID must re-derive it from current
// state before trusting it.
package ids

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/hashstructure/v2"
)

// ID is a 64-bit content address.
type ID uint64

// Zero is never produced by Derive for a valid description and is used as
// "no parent".
const Zero ID = 0

// String returns the 16-character upper-case hex form used in file names.
func (id ID) String() string {
	return fmt.Sprintf("%016X", uint64(id))
}

// Parse parses the hex form produced by String. A 0x prefix is accepted.
func Parse(s string) (ID, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return Zero, fmt.Errorf("empty id")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return Zero, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Description is the semantic description an ID is derived from.
// Fields that do not apply to a kind are left zero.
type Description struct {
	Kind    string
	Name    string
	Address uint64
	Owner   ID
	Offset  int64
}

var hashOpts = &hashstructure.HashOptions{ZeroNil: true}

// Derive hashes a description into an ID.
func Derive(d Description) ID {
	h, err := hashstructure.Hash(d, hashstructure.FormatV2, hashOpts)
	if err != nil {
		// Description only holds scalar fields, hashstructure cannot fail on it.
		panic(fmt.Sprintf("ids: hash description: %v", err))
	}
	if h == 0 {
		h = 1
	}
	return ID(h)
}

// Function returns the ID of the function starting at ea.
func Function(ea uint64) ID {
	return Derive(Description{Kind: "function", Address: ea})
}

// EA returns the ID of a plain location. Code, data and basic blocks at the
// same address share it; they are told apart by kind.
func EA(ea uint64) ID {
	return Derive(Description{Kind: "ea", Address: ea})
}

// Struc returns the ID of a free-standing structure named name.
func Struc(name string) ID {
	return Derive(Description{Kind: "struc", Name: name})
}

// Stack returns the ID of the stack frame owned by the function at funcEA.
func Stack(funcEA uint64) ID {
	return Derive(Description{Kind: "stack", Address: funcEA})
}

// Member returns the ID of the structure or frame member at offset in parent.
func Member(parent ID, offset int64) ID {
	return Derive(Description{Kind: "member", Owner: parent, Offset: offset})
}

// Enum returns the ID of the enumeration named name.
func Enum(name string) ID {
	return Derive(Description{Kind: "enum", Name: name})
}

// EnumMember returns the ID of the member named name in enumeration parent.
func EnumMember(parent ID, name string) ID {
	return Derive(Description{Kind: "enum_member", Owner: parent, Name: name})
}
