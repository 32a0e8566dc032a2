package closure

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

type graphBuilder struct {
	m *snapshot.Memory
}

func newGraph() *graphBuilder {
	return &graphBuilder{m: snapshot.NewMemory()}
}

func (g *graphBuilder) add(k kind.Kind, id, parent ids.ID, xrefs ...ids.ID) *graphBuilder {
	v := snapshot.Version{ParentID: parent}
	for _, x := range xrefs {
		v.Xrefs = append(v.Xrefs, snapshot.Xref{ID: x})
	}
	_ = g.m.VisitObject(&snapshot.Object{ID: id, Kind: k, Versions: []snapshot.Version{v}})
	return g
}

func path(k kind.Kind, id ids.ID) string {
	return snapshot.Path("cache", k, id)
}

func TestExpandFollowsXrefsWithUseDependencies(t *testing.T) {
	a, b := ids.EA(0x1000), ids.EA(0x2000)
	g := newGraph().
		add(kind.Code, a, ids.Zero, b).
		add(kind.Data, b, ids.Zero)

	cb := New(g.m, "cache")
	cb.Expand(a, UseDependencies)

	want := []string{path(kind.Code, a), path(kind.Data, b)}
	if diff := cmp.Diff(want, cb.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandSkipDependencies(t *testing.T) {
	fn := ids.Function(0x1000)
	blk, target := ids.EA(0x1000), ids.EA(0x3000)
	g := newGraph().
		add(kind.Function, fn, ids.Zero, blk).
		add(kind.BasicBlock, blk, fn, target).
		add(kind.Data, target, ids.Zero)

	cb := New(g.m, "cache")
	cb.Expand(blk, SkipDependencies)

	// The parent comes along; the block's own xref does not, and neither
	// does the parent's.
	want := []string{path(kind.BasicBlock, blk), path(kind.Function, fn)}
	if diff := cmp.Diff(want, cb.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandContainerBringsMembers(t *testing.T) {
	st := ids.Struc("Foo")
	m0, m4 := ids.Member(st, 0), ids.Member(st, 4)
	code := ids.EA(0x1000)
	g := newGraph().
		add(kind.Code, code, ids.Zero, m0).
		add(kind.StructMember, m0, st).
		add(kind.StructMember, m4, st).
		add(kind.Struct, st, ids.Zero, m0, m4)

	cb := New(g.m, "cache")
	cb.Expand(code, UseDependencies)

	want := []string{
		path(kind.Code, code),
		path(kind.StructMember, m0),
		path(kind.Struct, st),
		path(kind.StructMember, m4),
	}
	if diff := cmp.Diff(want, cb.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandCycle(t *testing.T) {
	x, y := ids.EA(0x1000), ids.EA(0x2000)
	g := newGraph().
		add(kind.Code, x, ids.Zero, y).
		add(kind.Code, y, ids.Zero, x)

	cb := New(g.m, "cache")
	cb.Expand(x, UseDependencies)
	cb.Expand(y, UseDependencies)

	want := []string{path(kind.Code, x), path(kind.Code, y)}
	if diff := cmp.Diff(want, cb.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandMissingID(t *testing.T) {
	a := ids.EA(0x1000)
	g := newGraph().add(kind.Code, a, ids.Struc("gone"), ids.EA(0xdead))

	cb := New(g.m, "cache")
	cb.Expand(ids.EA(0xbeef), UseDependencies)
	cb.Expand(a, UseDependencies)

	if diff := cmp.Diff([]string{path(kind.Code, a)}, cb.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandSharedLocationID(t *testing.T) {
	fn := ids.Function(0x1000)
	loc := ids.EA(0x1000)
	g := newGraph().
		add(kind.Function, fn, ids.Zero, loc).
		add(kind.BasicBlock, loc, fn).
		add(kind.Code, loc, ids.Zero)

	cb := New(g.m, "cache")
	cb.Expand(loc, SkipDependencies)

	want := []string{path(kind.Code, loc), path(kind.BasicBlock, loc), path(kind.Function, fn)}
	if diff := cmp.Diff(want, cb.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
}

func TestAddMissingParents(t *testing.T) {
	en := ids.Enum("Color")
	red, green := ids.EnumMember(en, "RED"), ids.EnumMember(en, "GREEN")
	other := ids.Enum("Other")
	g := newGraph().
		add(kind.Enum, en, ids.Zero, red, green).
		add(kind.EnumMember, green, en).
		add(kind.Enum, other, ids.Zero)

	cb := New(g.m, "cache")
	cb.AddMissingParents(map[ids.ID]bool{red: true})

	want := []string{path(kind.Enum, en), path(kind.EnumMember, green)}
	if diff := cmp.Diff(want, cb.Files()); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}
	if cb.Contains(other) {
		t.Error("unrelated enum pulled into the closure")
	}
}

func TestAddMissingParentsIgnoresNonContainers(t *testing.T) {
	gone := ids.EA(0x2000)
	code := ids.EA(0x1000)
	g := newGraph().add(kind.Code, code, ids.Zero, gone)

	cb := New(g.m, "cache")
	cb.AddMissingParents(map[ids.ID]bool{gone: true})
	if len(cb.Files()) != 0 {
		t.Errorf("Files() = %v, want none", cb.Files())
	}
}
