package snapshot

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
)

func obj(k kind.Kind, id ids.ID, name string) *Object {
	return &Object{ID: id, Kind: k, Versions: []Version{{Name: name}}}
}

func TestPathRoundTrip(t *testing.T) {
	id := ids.Struc("Foo")
	p := Path("cache", kind.Struct, id)
	if want := "cache/struc/" + id.String() + ".yaml"; p != want {
		t.Fatalf("Path() = %q, want %q", p, want)
	}

	k, got, err := ParsePath(p)
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	if k != kind.Struct || got != id {
		t.Errorf("ParsePath() = (%v, %v), want (%v, %v)", k, got, kind.Struct, id)
	}
}

func TestParsePathRejects(t *testing.T) {
	tests := []string{
		"cache/struc/ABC.yaml",
		"cache/nope/0000000000000001.yaml",
		"cache/struc/0000000000000001.xml",
		"cache/struc/ZZZZZZZZZZZZZZZZ.yaml",
		"README.md",
	}
	for _, p := range tests {
		if _, _, err := ParsePath(p); !errors.Is(err, ErrBadPath) {
			t.Errorf("ParsePath(%q) error = %v, want ErrBadPath", p, err)
		}
	}
}

func TestUnderPrefix(t *testing.T) {
	tests := []struct {
		prefix, path string
		want         bool
	}{
		{"cache", "cache/code/0000000000000001.yaml", true},
		{"cache/", "./cache/code/0000000000000001.yaml", true},
		{"cache", "cachex/code/0000000000000001.yaml", false},
		{"cache", "src/main.go", false},
		{"", "anything", true},
	}
	for _, tt := range tests {
		if got := UnderPrefix(tt.prefix, tt.path); got != tt.want {
			t.Errorf("UnderPrefix(%q, %q) = %v, want %v", tt.prefix, tt.path, got, tt.want)
		}
	}
}

func TestMemoryReplacesObject(t *testing.T) {
	m := NewMemory()
	id := ids.Struc("Foo")
	_ = m.VisitObject(obj(kind.Struct, id, "first"))
	_ = m.VisitObject(obj(kind.Struct, id, "second"))

	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	o, ok := m.Get(kind.Struct, id)
	if !ok {
		t.Fatal("Get() found nothing")
	}
	if o.Current().Name != "second" {
		t.Errorf("Name = %q, want %q", o.Current().Name, "second")
	}
}

func TestMemoryAcceptWinsOverDelete(t *testing.T) {
	id := ids.EA(0x401000)

	before := NewMemory()
	_ = before.VisitDeleted(kind.Code, id)
	_ = before.VisitObject(obj(kind.Code, id, ""))

	after := NewMemory()
	_ = after.VisitObject(obj(kind.Code, id, ""))
	_ = after.VisitDeleted(kind.Code, id)

	for name, m := range map[string]*Memory{"delete first": before, "accept first": after} {
		if m.IsDeleted(kind.Code, id) {
			t.Errorf("%s: object still marked deleted", name)
		}
		if _, ok := m.Get(kind.Code, id); !ok {
			t.Errorf("%s: object missing", name)
		}
	}
}

func TestMemoryKindsShareID(t *testing.T) {
	m := NewMemory()
	id := ids.EA(0x401000)
	_ = m.VisitObject(obj(kind.BasicBlock, id, ""))
	_ = m.VisitObject(obj(kind.Code, id, ""))
	_ = m.VisitDeleted(kind.Data, id)

	got := m.Lookup(id)
	if len(got) != 2 || got[0].Kind != kind.Code || got[1].Kind != kind.BasicBlock {
		t.Fatalf("Lookup() = %v, want code then basic_block", got)
	}
	if !m.IsDeleted(kind.Data, id) {
		t.Error("data marker lost")
	}
}

func TestMemoryAcceptOrder(t *testing.T) {
	m := NewMemory()
	a, b := ids.Enum("A"), ids.Struc("B")
	_ = m.VisitObject(obj(kind.Enum, a, "A"))
	_ = m.VisitDeleted(kind.Struct, b)

	rec := &Recorder{}
	if err := m.Accept(rec); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	want := []string{
		"start",
		"delete struc " + b.String(),
		"object enum " + a.String(),
		"end",
	}
	if diff := cmp.Diff(want, rec.Calls); diff != "" {
		t.Errorf("Accept() calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSkipBoundaries(t *testing.T) {
	rec := &Recorder{}
	v := SkipBoundaries(rec)
	_ = v.VisitStart()
	_ = v.VisitDeleted(kind.Enum, ids.Enum("E"))
	_ = v.VisitObject(obj(kind.Enum, ids.Enum("F"), "F"))
	_ = v.VisitEnd()

	want := []string{
		"delete enum " + ids.Enum("E").String(),
		"object enum " + ids.Enum("F").String(),
	}
	if diff := cmp.Diff(want, rec.Calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectParentsAndXrefs(t *testing.T) {
	p := ids.Struc("P")
	x, y := ids.EA(1), ids.EA(2)
	o := &Object{
		ID:   ids.EA(3),
		Kind: kind.Code,
		Versions: []Version{
			{ParentID: p, Xrefs: []Xref{{ID: x}, {ID: y}}},
			{ParentID: p, Xrefs: []Xref{{ID: x}, {ID: ids.Zero}}},
		},
	}
	if diff := cmp.Diff([]ids.ID{p}, o.Parents()); diff != "" {
		t.Errorf("Parents() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ids.ID{x, y}, o.XrefIDs()); diff != "" {
		t.Errorf("XrefIDs() mismatch (-want +got):\n%s", diff)
	}
}
