// Package host defines the boundary to the live analysis database.
//
// The live database is owned by the analysis host. This package only describes
// what the sync engine needs to read from it: classification of addresses,
// functions and their control-flow blocks, structures and stack frames, and
// enumerations. Handles and addresses share one 64-bit space, as they do in the
// hosts this engine targets, so a handle never collides with a mapped address.
package host

// BadAddr marks "no address" and "no handle".
const BadAddr uint64 = ^uint64(0)

// Flags classify a single address.
type Flags uint8

const (
	FlagCode Flags = 1 << iota
	FlagData
)

// IsCode reports whether the address holds code.
func (f Flags) IsCode() bool { return f&FlagCode != 0 }

// IsData reports whether the address holds data.
func (f Flags) IsData() bool { return f&FlagData != 0 }

// Ref is an operand reference from an item or member to another entity.
// Exactly one of Handle or Address is set.
type Ref struct {
	Operand int
	Handle  uint64
	Address uint64
}

// Item is a code or data head.
type Item struct {
	EA      uint64
	Size    uint64
	Flags   Flags
	Name    string
	Comment string
	Refs    []Ref
}

// Block is one node of a function's control-flow partition.
type Block struct {
	Start uint64
	End   uint64
}

// Func is a function. Frame is the handle of its stack frame, BadAddr if none.
type Func struct {
	Start   uint64
	End     uint64
	Name    string
	Comment string
	Frame   uint64
}

// Member is a structure or frame member.
type Member struct {
	ID      uint64
	Name    string
	Offset  int64
	Size    uint64
	Comment string
	Type    uint64
}

// Struc is a structure or a stack frame.
type Struc struct {
	ID      uint64
	Name    string
	Comment string
	Members []Member
}

// EnumMember is a named constant of an enumeration.
type EnumMember struct {
	ID      uint64
	Name    string
	Value   uint64
	Comment string
}

// Enum is an enumeration.
type Enum struct {
	ID       uint64
	Name     string
	Comment  string
	Bitfield bool
	Members  []EnumMember
}

// Segment is a mapped address range.
type Segment struct {
	Start uint64
	End   uint64
	Name  string
}

// Database is the read side of the live analysis database.
//
// Lookups return ok=false when the entity does not exist; name lookups return
// the empty string. Implementations are not required to be safe for
// concurrent use: the sync engine only calls them from the goroutine that owns
// the database.
type Database interface {
	// Segment returns the segment containing ea.
	Segment(ea uint64) (Segment, bool)
	// Segments returns all segments ordered by start address.
	Segments() []Segment

	// Flags classifies the head at ea.
	Flags(ea uint64) Flags
	// Item returns the code or data head starting at ea.
	Item(ea uint64) (Item, bool)
	// Items returns every code or data head ordered by address.
	Items() []Item

	// FuncAt returns the function containing ea.
	FuncAt(ea uint64) (Func, bool)
	// Funcs returns all functions ordered by start address.
	Funcs() []Func
	// FlowChart returns the basic blocks of the function containing ea.
	FlowChart(ea uint64) []Block
	// FrameOf returns the frame handle of the function containing ea.
	FrameOf(ea uint64) (uint64, bool)
	// FrameOwner returns the start of the function owning frame struc, or
	// BadAddr if struc is not a frame.
	FrameOwner(struc uint64) uint64

	// Struc returns the structure or frame with the given handle. ok is false
	// once the structure has been deleted.
	Struc(id uint64) (Struc, bool)
	// StrucName returns the current name of a structure, "" if it is gone.
	StrucName(id uint64) string
	// Strucs returns all free-standing structures (frames excluded).
	Strucs() []Struc
	// MemberAt returns the member of struc that covers offset.
	MemberAt(struc uint64, offset int64) (Member, bool)
	// MemberByID returns a member and the handle of its structure.
	MemberByID(id uint64) (Member, uint64, bool)

	// Enum returns the enumeration with the given handle.
	Enum(id uint64) (Enum, bool)
	// EnumName returns the current name of an enumeration, "" if it is gone.
	EnumName(id uint64) string
	// Enums returns all enumerations.
	Enums() []Enum
	// EnumMemberName returns the name of an enumeration member.
	EnumMemberName(id uint64) string
	// EnumOfMember returns the enumeration that owns member id.
	EnumOfMember(id uint64) (uint64, bool)
}

// ChangeType says which touch a host change maps to.
type ChangeType int

const (
	ChangeLocation ChangeType = iota
	ChangeFunction
	ChangeCode
	ChangeData
	ChangeStruct
	ChangeEnum
)

// Change is emitted by the live database when an analyst mutates it.
// Target is an address for location kinds and a handle for Struct and Enum.
type Change struct {
	Type   ChangeType
	Target uint64
}

// String names the change type for logs.
func (t ChangeType) String() string {
	switch t {
	case ChangeLocation:
		return "location"
	case ChangeFunction:
		return "function"
	case ChangeCode:
		return "code"
	case ChangeData:
		return "data"
	case ChangeStruct:
		return "struct"
	case ChangeEnum:
		return "enum"
	default:
		return "unknown"
	}
}
