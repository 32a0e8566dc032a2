package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yatools/yasync/internal/events"
	"github.com/yatools/yasync/internal/host/memhost"
	"github.com/yatools/yasync/internal/snapshot"
	"github.com/yatools/yasync/internal/store"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir, "cache", store.DefaultOptions())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	db := memhost.New()
	if err := db.AddSegment(0x400000, 0x500000, ".text"); err != nil {
		t.Fatal(err)
	}
	if err := db.AddFunction(0x401000, 0x401010, "main", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddStruct("point"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddEnum("color", false); err != nil {
		t.Fatal(err)
	}
	return &app{
		root:    dir,
		db:      db,
		store:   s,
		session: events.New(events.Config{DB: db, Store: s}),
	}
}

func TestTouchNamed(t *testing.T) {
	a := newTestApp(t)
	for _, arg := range []string{"0x401000", "point", "color"} {
		if err := touchNamed(a, arg); err != nil {
			t.Errorf("touchNamed(%q) error = %v", arg, err)
		}
	}
	p := a.session.Pending()
	if p.Locations == 0 || p.Strucs != 1 || p.Enums != 1 {
		t.Errorf("Pending() = %+v", p)
	}

	if err := touchNamed(a, "missing"); err == nil {
		t.Error("touchNamed(missing) error = nil, want error")
	}
}

func TestTouchAll(t *testing.T) {
	a := newTestApp(t)
	touchAll(a)
	p := a.session.Pending()
	if p.Locations == 0 || p.Strucs != 1 || p.Enums != 1 {
		t.Errorf("Pending() = %+v", p)
	}
}

func TestChangeSet(t *testing.T) {
	a := newTestApp(t)
	present := filepath.Join(a.root, "cache", "enum", "0000000000000001.yaml")
	if err := os.MkdirAll(filepath.Dir(present), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(present, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(a.root, "cache", "enum", "0000000000000002.yaml")

	cs, err := changeSet(a, []string{present, missing})
	if err != nil {
		t.Fatalf("changeSet() error = %v", err)
	}
	want := snapshot.ChangeSet{
		Updated: []string{"cache/enum/0000000000000001.yaml"},
		Deleted: []string{"cache/enum/0000000000000002.yaml"},
	}
	if diff := cmp.Diff(want, cs); diff != "" {
		t.Errorf("changeSet() mismatch (-want +got):\n%s", diff)
	}

	if _, err := changeSet(a, []string{filepath.Join(a.root, "elsewhere.yaml")}); err == nil {
		t.Error("changeSet() outside the cache error = nil, want error")
	}
}

func TestResolveRootOutsideRepository(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveRoot(dir)
	if err != nil {
		t.Fatalf("resolveRoot() error = %v", err)
	}
	if got != dir {
		t.Errorf("resolveRoot() = %q, want %q", got, dir)
	}
}

func TestShort(t *testing.T) {
	if got := short("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("short() = %q", got)
	}
	if got := short("abc"); got != "abc" {
		t.Errorf("short() = %q", got)
	}
}
