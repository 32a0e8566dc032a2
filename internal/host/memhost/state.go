package memhost

import (
	"sort"

	"github.com/yatools/yasync/internal/host"
)

// FuncState is a function with its block partition.
type FuncState struct {
	Func   host.Func    `yaml:"func"`
	Blocks []host.Block `yaml:"blocks,omitempty"`
}

// StrucState is a structure and the function owning it when it is a frame.
type StrucState struct {
	Struc   host.Struc `yaml:"struc"`
	FrameOf uint64     `yaml:"frame_of"`
}

// State is a plain snapshot of the whole database, used for persistence.
type State struct {
	NextHandle uint64         `yaml:"next_handle"`
	Segments   []host.Segment `yaml:"segments"`
	Items      []host.Item    `yaml:"items"`
	Funcs      []FuncState    `yaml:"funcs"`
	Strucs     []StrucState   `yaml:"strucs"`
	Enums      []host.Enum    `yaml:"enums"`
}

// State returns a deep copy of the database contents ordered by key.
func (d *DB) State() State {
	s := State{
		NextHandle: d.nextHandle,
		Segments:   d.Segments(),
		Items:      d.Items(),
		Enums:      d.Enums(),
	}
	for _, f := range d.Funcs() {
		s.Funcs = append(s.Funcs, FuncState{
			Func:   f,
			Blocks: append([]host.Block(nil), d.funcs[f.Start].blocks...),
		})
	}
	for _, e := range d.strucs {
		s.Strucs = append(s.Strucs, StrucState{Struc: copyStruc(&e.st), FrameOf: e.frameOf})
	}
	sort.Slice(s.Strucs, func(i, j int) bool { return s.Strucs[i].Struc.ID < s.Strucs[j].Struc.ID })
	return s
}

// FromState rebuilds a database from a State. Hooks are not carried over.
func FromState(s State) *DB {
	d := New()
	if s.NextHandle > d.nextHandle {
		d.nextHandle = s.NextHandle
	}
	d.segments = append(d.segments, s.Segments...)
	sort.Slice(d.segments, func(i, j int) bool { return d.segments[i].Start < d.segments[j].Start })
	for i := range s.Items {
		it := copyItem(&s.Items[i])
		d.items[it.EA] = &it
	}
	for _, f := range s.Funcs {
		d.funcs[f.Func.Start] = &funcEntry{fn: f.Func, blocks: sortedBlocks(f.Blocks)}
	}
	for _, st := range s.Strucs {
		d.strucs[st.Struc.ID] = &strucEntry{st: copyStruc(&st.Struc), frameOf: st.FrameOf}
		for _, m := range st.Struc.Members {
			d.memberOwner[m.ID] = st.Struc.ID
		}
		d.bumpHandle(st.Struc.ID)
	}
	for i := range s.Enums {
		e := copyEnum(&s.Enums[i])
		d.enums[e.ID] = &e
		for _, m := range e.Members {
			d.enumMemberOwner[m.ID] = e.ID
			d.bumpHandle(m.ID)
		}
		d.bumpHandle(e.ID)
	}
	for _, e := range d.strucs {
		for _, m := range e.st.Members {
			d.bumpHandle(m.ID)
		}
	}
	return d
}

func (d *DB) bumpHandle(h uint64) {
	if h >= d.nextHandle && h != host.BadAddr {
		d.nextHandle = h + 1
	}
}
