// Package script applies YAML edit scripts to a live database.
//
// An edit script is the analyst's side of the workflow in a headless setting:
// each step is one call into the live database's mutation API, so every step
// fires the same change hooks an interactive edit would, and the sync session
// records the touched objects.
//
// Example:
//
//	steps:
//	  - op: struct
//	    name: Foo
//	  - op: member
//	    struct: Foo
//	    name: bar
//	    offset: 0
//	    size: 4
//	  - op: rename_struct
//	    struct: Foo
//	    to: Bar
//
// Structures are named by `struct`, stack frames by `frame` (the address of
// the owning function), enumerations by `enum`.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/host/memhost"
)

// Op names one mutation.
type Op string

const (
	OpSegment          Op = "segment"
	OpCode             Op = "code"
	OpData             Op = "data"
	OpUndefine         Op = "undefine"
	OpName             Op = "name"
	OpComment          Op = "comment"
	OpRef              Op = "ref"
	OpFunction         Op = "function"
	OpBlocks           Op = "blocks"
	OpDeleteFunction   Op = "delete_function"
	OpFrame            Op = "frame"
	OpStruct           Op = "struct"
	OpRenameStruct     Op = "rename_struct"
	OpDeleteStruct     Op = "delete_struct"
	OpMember           Op = "member"
	OpRenameMember     Op = "rename_member"
	OpDeleteMember     Op = "delete_member"
	OpEnum             Op = "enum"
	OpRenameEnum       Op = "rename_enum"
	OpDeleteEnum       Op = "delete_enum"
	OpEnumMember       Op = "enum_member"
	OpRenameEnumMember Op = "rename_enum_member"
	OpDeleteEnumMember Op = "delete_enum_member"
)

// ErrUnresolved is returned when a step names an entity that does not exist.
var ErrUnresolved = errors.New("unresolved reference")

// Range is a half-open address range.
type Range struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

// Step is one edit. Only the fields its Op uses are read.
type Step struct {
	Op Op `yaml:"op"`

	EA      uint64  `yaml:"ea,omitempty"`
	Start   uint64  `yaml:"start,omitempty"`
	End     uint64  `yaml:"end,omitempty"`
	Size    uint64  `yaml:"size,omitempty"`
	Blocks  []Range `yaml:"blocks,omitempty"`
	Name    string  `yaml:"name,omitempty"`
	To      string  `yaml:"to,omitempty"`
	Comment string  `yaml:"comment,omitempty"`

	// Ref target: one of Address, Struct or Enum.
	Operand int    `yaml:"operand,omitempty"`
	Address uint64 `yaml:"address,omitempty"`

	Struct string `yaml:"struct,omitempty"`
	Frame  uint64 `yaml:"frame,omitempty"`
	Offset int64  `yaml:"offset,omitempty"`
	// Type names the structure or enumeration typing a new member.
	Type string `yaml:"type,omitempty"`

	Enum     string `yaml:"enum,omitempty"`
	Member   string `yaml:"member,omitempty"`
	Value    uint64 `yaml:"value,omitempty"`
	Bitfield bool   `yaml:"bitfield,omitempty"`
}

// Script is an ordered list of steps.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Parse decodes a script. Unknown fields are rejected.
func Parse(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, st := range s.Steps {
		if !st.Op.valid() {
			return nil, fmt.Errorf("step %d: unknown op %q", i+1, st.Op)
		}
	}
	return &s, nil
}

// ParseFile reads and decodes the script at path.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

func (op Op) valid() bool {
	switch op {
	case OpSegment, OpCode, OpData, OpUndefine, OpName, OpComment, OpRef,
		OpFunction, OpBlocks, OpDeleteFunction, OpFrame,
		OpStruct, OpRenameStruct, OpDeleteStruct,
		OpMember, OpRenameMember, OpDeleteMember,
		OpEnum, OpRenameEnum, OpDeleteEnum,
		OpEnumMember, OpRenameEnumMember, OpDeleteEnumMember:
		return true
	}
	return false
}

// Runner applies scripts to one database.
type Runner struct {
	db     *memhost.DB
	logger *zap.Logger
}

// NewRunner returns a runner for db. A nil logger discards output.
func NewRunner(db *memhost.DB, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{db: db, logger: logger.Named("script")}
}

// Apply runs the steps in order and stops at the first failure. It returns
// the number of steps applied; earlier steps stay applied on failure.
func (r *Runner) Apply(s *Script) (int, error) {
	for i, st := range s.Steps {
		if err := r.step(st); err != nil {
			return i, fmt.Errorf("step %d (%s): %w", i+1, st.Op, err)
		}
		r.logger.Debug("applied step", zap.Int("step", i+1), zap.String("op", string(st.Op)))
	}
	return len(s.Steps), nil
}

func (r *Runner) step(st Step) error {
	d := r.db
	switch st.Op {
	case OpSegment:
		return d.AddSegment(st.Start, st.End, st.Name)
	case OpCode:
		return d.MakeCode(st.EA, st.Size)
	case OpData:
		return d.MakeData(st.EA, st.Size)
	case OpUndefine:
		return d.DeleteItem(st.EA)
	case OpName:
		return d.SetName(st.EA, st.Name)
	case OpComment:
		return d.SetComment(st.EA, st.Comment)
	case OpRef:
		ref, err := r.ref(st)
		if err != nil {
			return err
		}
		return d.AddRef(st.EA, ref)

	case OpFunction:
		return d.AddFunction(st.Start, st.End, st.Name, blocks(st.Blocks))
	case OpBlocks:
		return d.SetBlocks(st.Start, blocks(st.Blocks))
	case OpDeleteFunction:
		return d.DeleteFunction(st.Start)
	case OpFrame:
		_, err := d.AddFrame(st.Start)
		return err

	case OpStruct:
		_, err := d.AddStruct(st.Name)
		return err
	case OpRenameStruct:
		id, err := r.struc(st)
		if err != nil {
			return err
		}
		return d.RenameStruct(id, st.To)
	case OpDeleteStruct:
		id, err := r.struc(st)
		if err != nil {
			return err
		}
		return d.DeleteStruct(id)

	case OpMember:
		id, err := r.struc(st)
		if err != nil {
			return err
		}
		typ, err := r.memberType(st.Type)
		if err != nil {
			return err
		}
		_, err = d.AddMember(id, st.Name, st.Offset, st.Size, typ)
		return err
	case OpRenameMember:
		m, err := r.member(st)
		if err != nil {
			return err
		}
		return d.RenameMember(m.ID, st.To)
	case OpDeleteMember:
		id, err := r.struc(st)
		if err != nil {
			return err
		}
		return d.DeleteMember(id, st.Offset)

	case OpEnum:
		_, err := d.AddEnum(st.Name, st.Bitfield)
		return err
	case OpRenameEnum:
		id, err := r.enum(st.Enum)
		if err != nil {
			return err
		}
		return d.RenameEnum(id, st.To)
	case OpDeleteEnum:
		id, err := r.enum(st.Enum)
		if err != nil {
			return err
		}
		return d.DeleteEnum(id)
	case OpEnumMember:
		id, err := r.enum(st.Enum)
		if err != nil {
			return err
		}
		_, err = d.AddEnumMember(id, st.Name, st.Value)
		return err
	case OpRenameEnumMember:
		id, err := r.enumMember(st)
		if err != nil {
			return err
		}
		return d.RenameEnumMember(id, st.To)
	case OpDeleteEnumMember:
		id, err := r.enumMember(st)
		if err != nil {
			return err
		}
		return d.DeleteEnumMember(id)
	}
	return fmt.Errorf("unknown op %q", st.Op)
}

func blocks(rs []Range) []host.Block {
	if len(rs) == 0 {
		return nil
	}
	out := make([]host.Block, len(rs))
	for i, r := range rs {
		out[i] = host.Block{Start: r.Start, End: r.End}
	}
	return out
}

// struc resolves the structure named by st.Struct, or the frame of the
// function at st.Frame.
func (r *Runner) struc(st Step) (uint64, error) {
	switch {
	case st.Struct != "" && st.Frame != 0:
		return host.BadAddr, fmt.Errorf("struct and frame are exclusive")
	case st.Struct != "":
		id, ok := r.db.StrucByName(st.Struct)
		if !ok {
			return host.BadAddr, fmt.Errorf("struct %s: %w", st.Struct, ErrUnresolved)
		}
		return id, nil
	case st.Frame != 0:
		id, ok := r.db.FrameOf(st.Frame)
		if !ok {
			return host.BadAddr, fmt.Errorf("frame of 0x%X: %w", st.Frame, ErrUnresolved)
		}
		return id, nil
	}
	return host.BadAddr, fmt.Errorf("struct or frame is required")
}

func (r *Runner) member(st Step) (host.Member, error) {
	id, err := r.struc(st)
	if err != nil {
		return host.Member{}, err
	}
	m, ok := r.db.MemberAt(id, st.Offset)
	if !ok || m.Offset != st.Offset {
		return host.Member{}, fmt.Errorf("member at %d: %w", st.Offset, ErrUnresolved)
	}
	return m, nil
}

func (r *Runner) enum(name string) (uint64, error) {
	id, ok := r.db.EnumByName(name)
	if !ok {
		return host.BadAddr, fmt.Errorf("enum %s: %w", name, ErrUnresolved)
	}
	return id, nil
}

func (r *Runner) enumMember(st Step) (uint64, error) {
	enum, err := r.enum(st.Enum)
	if err != nil {
		return host.BadAddr, err
	}
	id, ok := r.db.EnumMemberByName(enum, st.Member)
	if !ok {
		return host.BadAddr, fmt.Errorf("enum member %s.%s: %w", st.Enum, st.Member, ErrUnresolved)
	}
	return id, nil
}

// memberType resolves a structure or enumeration name to its handle. The
// empty name is untyped.
func (r *Runner) memberType(name string) (uint64, error) {
	if name == "" {
		return 0, nil
	}
	if id, ok := r.db.StrucByName(name); ok {
		return id, nil
	}
	if id, ok := r.db.EnumByName(name); ok {
		return id, nil
	}
	return 0, fmt.Errorf("type %s: %w", name, ErrUnresolved)
}

func (r *Runner) ref(st Step) (host.Ref, error) {
	ref := host.Ref{Operand: st.Operand}
	switch {
	case st.Struct != "":
		id, err := r.struc(Step{Struct: st.Struct})
		if err != nil {
			return ref, err
		}
		ref.Handle = id
	case st.Enum != "":
		id, err := r.enum(st.Enum)
		if err != nil {
			return ref, err
		}
		ref.Handle = id
	case st.Address != 0:
		ref.Address = st.Address
	default:
		return ref, fmt.Errorf("ref needs an address, struct or enum")
	}
	return ref, nil
}
