// Package kind enumerates the entity kinds tracked in the snapshot store.
package kind

// Kind is the type of an analysis entity.
type Kind int

// The order of the kinds is stable: batches sort their objects by kind.
const (
	// Unknown is an address that is neither code nor data.
	Unknown Kind = iota
	// Function is a function, keyed by its start address.
	Function
	// Code is an instruction outside any function.
	Code
	// Data is a defined data item.
	Data
	// BasicBlock is a block of a function's flow chart.
	BasicBlock
	// Struct is a free-standing structure, keyed by name.
	Struct
	// StackFrame is the local variable frame of a function.
	StackFrame
	// Enum is an enumeration, keyed by name.
	Enum
	// EnumMember is a named constant of an enumeration.
	EnumMember
	// StructMember is a member of a free-standing structure.
	StructMember
	// StackFrameMember is a member of a stack frame.
	StackFrameMember
)

// names are the directory names used in the snapshot store. They are part of
// the on-disk format and must not change.
var names = map[Kind]string{
	Unknown:          "unknown",
	Function:         "function",
	Code:             "code",
	Data:             "data",
	BasicBlock:       "basic_block",
	Struct:           "struc",
	StackFrame:       "stackframe",
	Enum:             "enum",
	EnumMember:       "enum_member",
	StructMember:     "strucmember",
	StackFrameMember: "stackframe_member",
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, len(names))
	for k, n := range names {
		m[n] = k
	}
	return m
}()

// String returns the directory name of the kind.
func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return names[Unknown]
}

// Parse maps a directory name back to its kind, Unknown if none matches.
func Parse(s string) Kind {
	if k, ok := byName[s]; ok {
		return k
	}
	return Unknown
}

// All returns every storable kind in a stable order.
func All() []Kind {
	return []Kind{
		Function, Code, Data, BasicBlock,
		Struct, StructMember, StackFrame, StackFrameMember,
		Enum, EnumMember,
	}
}

// IsContainer reports whether objects of this kind are always rewritten with
// all of their members. Their members never travel alone.
func (k Kind) IsContainer() bool {
	return k == StackFrame || k == Struct || k == Enum
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = Parse(string(b))
	return nil
}
