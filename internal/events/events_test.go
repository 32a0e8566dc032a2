package events

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yatools/yasync/internal/export"
	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/host/memhost"
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
	"github.com/yatools/yasync/internal/store"
)

// fakeRepo records comments and commits.
type fakeRepo struct {
	comments   []string
	commits    int
	failCommit bool
	changes    snapshot.ChangeSet
	updateErr  error
	confirms   int
}

func (r *fakeRepo) AddComment(msg string) { r.comments = append(r.comments, msg) }

func (r *fakeRepo) CommitCache(ctx context.Context) bool {
	r.commits++
	return !r.failCommit
}

func (r *fakeRepo) UpdateCache(ctx context.Context) (snapshot.ChangeSet, error) {
	return r.changes, r.updateErr
}

func (r *fakeRepo) ConfirmUpdate() error {
	r.confirms++
	return nil
}

type testEnv struct {
	db    *memhost.DB
	repo  *fakeRepo
	store *store.Store
	sess  *session
}

// setupTestEnv returns a session over a database holding one function with
// a frame, a structure Foo, an enumeration Color and a data item.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := memhost.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}
	must(db.AddSegment(0x400000, 0x500000, ".text"))
	must(db.AddFunction(0x401000, 0x401020, "main", []host.Block{
		{Start: 0x401000, End: 0x401010},
		{Start: 0x401010, End: 0x401020},
	}))
	frame, err := db.AddFrame(0x401000)
	must(err)
	_, err = db.AddMember(frame, "var_4", -4, 4, 0)
	must(err)
	st, err := db.AddStruct("Foo")
	must(err)
	_, err = db.AddMember(st, "bar", 0, 4, 0)
	must(err)
	en, err := db.AddEnum("Color", false)
	must(err)
	_, err = db.AddEnumMember(en, "RED", 1)
	must(err)
	must(db.MakeData(0x402000, 4))

	s, err := store.Open(t.TempDir(), "cache", store.DefaultOptions())
	must(err)

	repo := &fakeRepo{}
	sess := New(Config{DB: db, Repo: repo, Store: s, Listener: db.Listener()}).(*session)
	return &testEnv{db: db, repo: repo, store: s, sess: sess}
}

func (e *testEnv) strucHandle(t *testing.T, name string) uint64 {
	t.Helper()
	h, ok := e.db.StrucByName(name)
	if !ok {
		t.Fatalf("struct %s not found", name)
	}
	return h
}

func (e *testEnv) reconcile(t *testing.T) *snapshot.Memory {
	t.Helper()
	m := snapshot.NewMemory()
	if err := e.sess.reconcile(m); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	return m
}

func TestTouchDedup(t *testing.T) {
	env := setupTestEnv(t)
	h := env.strucHandle(t, "Foo")

	env.sess.TouchStruct(h)
	env.sess.TouchStruct(h)
	env.sess.TouchData(0x402000)
	env.sess.TouchLocation(0x402000)

	want := Pending{Locations: 1, Strucs: 1, StrucMembers: 1}
	if diff := cmp.Diff(want, env.sess.Pending()); diff != "" {
		t.Errorf("Pending() mismatch (-want +got):\n%s", diff)
	}
}

func TestTouchLocationIgnoresUnknown(t *testing.T) {
	env := setupTestEnv(t)
	env.sess.TouchLocation(0x450000)
	if got := env.sess.Pending().Total(); got != 0 {
		t.Errorf("Pending().Total() = %d, want 0", got)
	}
	if len(env.repo.comments) != 0 {
		t.Errorf("comments = %v, want none", env.repo.comments)
	}
}

func TestTouchFrameTouchesFunction(t *testing.T) {
	env := setupTestEnv(t)
	frame, _ := env.db.FrameOf(0x401000)

	env.sess.TouchStruct(frame)

	if _, ok := env.sess.strucs[ids.Stack(0x401000)]; !ok {
		t.Error("frame not recorded under its owner's identity")
	}
	for _, l := range []location{
		{id: ids.Function(0x401000), kind: kind.Function},
		{id: ids.EA(0x401000), kind: kind.BasicBlock},
		{id: ids.EA(0x401010), kind: kind.BasicBlock},
	} {
		if _, ok := env.sess.eas[l]; !ok {
			t.Errorf("missing %s %s", l.kind, l.id)
		}
	}
}

func TestTouchEnumMemberResolvesParent(t *testing.T) {
	env := setupTestEnv(t)
	en, _ := env.db.EnumByName("Color")
	red, _ := env.db.EnumMemberByName(en, "RED")

	env.sess.TouchEnum(red)

	if got := env.sess.enums[ids.Enum("Color")]; got != en {
		t.Errorf("enum handle = %X, want %X", got, en)
	}
	if got := env.sess.Pending().EnumMembers; got != 1 {
		t.Errorf("EnumMembers = %d, want 1", got)
	}
	want := []string{
		"enum Color.RED: modified",
		"enum Color.RED: updated",
		"enum Color: updated",
	}
	if diff := cmp.Diff(want, env.repo.comments); diff != "" {
		t.Errorf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkerPrefixes(t *testing.T) {
	env := setupTestEnv(t)
	st := env.strucHandle(t, "Foo")
	bar, _ := env.db.MemberAt(st, 0)
	frame, _ := env.db.FrameOf(0x401000)
	v4, _ := env.db.MemberAt(frame, -4)

	tests := []struct {
		name string
		h    uint64
		want string
	}{
		{"address", 0x401000, "0x401000: "},
		{"unmapped", 0x900000, ""},
		{"struct", st, "struc Foo: "},
		{"member", bar.ID, "struc Foo.bar: "},
		{"frame", frame, "0x401000: stack "},
		{"frame member", v4.ID, "0x401000: stack .var_4: "},
		{"bad", host.BadAddr, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := env.sess.markerPrefix(tt.h); got != tt.want {
				t.Errorf("markerPrefix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReconcileRenameInvalidation(t *testing.T) {
	env := setupTestEnv(t)
	h := env.strucHandle(t, "Foo")
	env.sess.TouchStruct(h)
	if err := env.db.RenameStruct(h, "Bar"); err != nil {
		t.Fatalf("RenameStruct failed: %v", err)
	}

	m := env.reconcile(t)

	foo, bar := ids.Struc("Foo"), ids.Struc("Bar")
	wantDeleted := []snapshot.Key{
		{Kind: kind.Struct, ID: foo},
		{Kind: kind.StructMember, ID: ids.Member(foo, 0)},
	}
	if diff := cmp.Diff(wantDeleted, m.Deleted()); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	if _, ok := m.Get(kind.Struct, bar); !ok {
		t.Error("struct not accepted under its new name")
	}
	if _, ok := m.Get(kind.StructMember, ids.Member(bar, 0)); !ok {
		t.Error("member not accepted under its new parent")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestReconcileKindMigration(t *testing.T) {
	env := setupTestEnv(t)
	env.sess.TouchData(0x402000)
	if err := env.db.MakeCode(0x402000, 4); err != nil {
		t.Fatalf("MakeCode failed: %v", err)
	}

	m := env.reconcile(t)
	id := ids.EA(0x402000)

	if !m.IsDeleted(kind.Data, id) {
		t.Error("data record not deleted")
	}
	if _, ok := m.Get(kind.Code, id); !ok {
		t.Error("code not accepted")
	}
	if _, ok := m.Get(kind.Data, id); ok {
		t.Error("stale data accepted")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestReconcileCodeBecomesFunction(t *testing.T) {
	env := setupTestEnv(t)
	if err := env.db.MakeCode(0x403000, 2); err != nil {
		t.Fatalf("MakeCode failed: %v", err)
	}
	env.sess.TouchCode(0x403000)
	if err := env.db.AddFunction(0x403000, 0x403010, "sub_403000", nil); err != nil {
		t.Fatalf("AddFunction failed: %v", err)
	}
	env.sess.TouchFunction(0x403000)

	m := env.reconcile(t)
	if !m.IsDeleted(kind.Code, ids.EA(0x403000)) {
		t.Error("code record not deleted")
	}
	if _, ok := m.Get(kind.Function, ids.Function(0x403000)); !ok {
		t.Error("function not accepted")
	}
	if _, ok := m.Get(kind.Code, ids.EA(0x403000)); ok {
		t.Error("stale code accepted")
	}
}

func TestReconcileDeletedMember(t *testing.T) {
	env := setupTestEnv(t)
	env.db.OnChange(env.sess.Notify)
	h := env.strucHandle(t, "Foo")

	if err := env.db.DeleteMember(h, 0); err != nil {
		t.Fatalf("DeleteMember failed: %v", err)
	}

	m := env.reconcile(t)
	foo := ids.Struc("Foo")
	if !m.IsDeleted(kind.StructMember, ids.Member(foo, 0)) {
		t.Error("member not deleted")
	}
	o, ok := m.Get(kind.Struct, foo)
	if !ok {
		t.Fatal("parent not re-accepted")
	}
	if len(o.Current().Xrefs) != 0 {
		t.Errorf("parent still lists %d members", len(o.Current().Xrefs))
	}
}

func TestReconcileDeletedEnumMember(t *testing.T) {
	env := setupTestEnv(t)
	env.db.OnChange(env.sess.Notify)
	en, _ := env.db.EnumByName("Color")
	red, _ := env.db.EnumMemberByName(en, "RED")

	if err := env.db.DeleteEnumMember(red); err != nil {
		t.Fatalf("DeleteEnumMember failed: %v", err)
	}

	m := env.reconcile(t)
	color := ids.Enum("Color")
	if !m.IsDeleted(kind.EnumMember, ids.EnumMember(color, "RED")) {
		t.Error("enum member not deleted")
	}
	if _, ok := m.Get(kind.Enum, color); !ok {
		t.Error("enum not re-accepted")
	}
}

func call(op string, k kind.Kind, id ids.ID) string {
	return op + " " + k.String() + " " + id.String()
}

func TestReconcileBranches(t *testing.T) {
	color, hue := ids.Enum("Color"), ids.Enum("Hue")
	foo := ids.Struc("Foo")
	stack := ids.Stack(0x401000)
	data := ids.EA(0x402000)

	tests := []struct {
		name    string
		setup   func(t *testing.T, env *testEnv)
		want    []string
		notWant []string
	}{
		{
			name: "enum rename",
			setup: func(t *testing.T, env *testEnv) {
				en, _ := env.db.EnumByName("Color")
				env.sess.TouchEnum(en)
				if err := env.db.RenameEnum(en, "Hue"); err != nil {
					t.Fatalf("RenameEnum failed: %v", err)
				}
			},
			want: []string{
				call("delete", kind.Enum, color),
				call("delete", kind.EnumMember, ids.EnumMember(color, "RED")),
				call("object", kind.Enum, hue),
				call("object", kind.EnumMember, ids.EnumMember(hue, "RED")),
			},
			notWant: []string{call("object", kind.Enum, color)},
		},
		{
			name: "enum member recorded under another parent",
			setup: func(t *testing.T, env *testEnv) {
				en, _ := env.db.EnumByName("Color")
				red, _ := env.db.EnumMemberByName(en, "RED")
				env.sess.enumMembers[ids.EnumMember(color, "RED")] = enumMemberRecord{
					parentID: ids.Enum("Other"),
					enum:     en,
					member:   red,
				}
			},
			want: []string{
				call("delete", kind.EnumMember, ids.EnumMember(color, "RED")),
				call("object", kind.Enum, color),
			},
		},
		{
			name: "free struct deleted",
			setup: func(t *testing.T, env *testEnv) {
				env.db.OnChange(env.sess.Notify)
				if err := env.db.DeleteStruct(env.strucHandle(t, "Foo")); err != nil {
					t.Fatalf("DeleteStruct failed: %v", err)
				}
			},
			want: []string{
				call("delete", kind.Struct, foo),
				call("delete", kind.StructMember, ids.Member(foo, 0)),
			},
			notWant: []string{call("object", kind.Struct, foo)},
		},
		{
			name: "valid data drops stale function and code",
			setup: func(t *testing.T, env *testEnv) {
				env.sess.TouchData(0x402000)
			},
			want: []string{
				call("object", kind.Data, data),
				call("delete", kind.Function, ids.Function(0x402000)),
				call("delete", kind.Code, data),
			},
			notWant: []string{call("delete", kind.Data, data)},
		},
		{
			name: "frame member removed from a valid frame",
			setup: func(t *testing.T, env *testEnv) {
				env.db.OnChange(env.sess.Notify)
				frame, _ := env.db.FrameOf(0x401000)
				if err := env.db.DeleteMember(frame, -4); err != nil {
					t.Fatalf("DeleteMember failed: %v", err)
				}
			},
			want: []string{
				call("delete", kind.StackFrameMember, ids.Member(stack, -4)),
				call("object", kind.StackFrame, stack),
				call("object", kind.Function, ids.Function(0x401000)),
			},
			notWant: []string{
				call("delete", kind.StackFrame, stack),
				call("object", kind.StackFrameMember, ids.Member(stack, -4)),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			tt.setup(t, env)

			rec := &snapshot.Recorder{}
			if err := env.sess.reconcile(rec); err != nil {
				t.Fatalf("reconcile failed: %v", err)
			}
			for _, c := range tt.want {
				if !contains(rec.Calls, c) {
					t.Errorf("missing %q in %v", c, rec.Calls)
				}
			}
			for _, c := range tt.notWant {
				if contains(rec.Calls, c) {
					t.Errorf("unexpected %q", c)
				}
			}
		})
	}
}

func TestReconcileDeletedFunction(t *testing.T) {
	env := setupTestEnv(t)
	env.db.OnChange(env.sess.Notify)

	if err := env.db.DeleteFunction(0x401000); err != nil {
		t.Fatalf("DeleteFunction failed: %v", err)
	}

	m := env.reconcile(t)
	stack := ids.Stack(0x401000)
	for _, k := range []snapshot.Key{
		{Kind: kind.Function, ID: ids.Function(0x401000)},
		{Kind: kind.StackFrame, ID: stack},
		{Kind: kind.StackFrameMember, ID: ids.Member(stack, -4)},
		{Kind: kind.BasicBlock, ID: ids.EA(0x401000)},
		{Kind: kind.BasicBlock, ID: ids.EA(0x401010)},
	} {
		if !m.IsDeleted(k.Kind, k.ID) {
			t.Errorf("%s %s not deleted", k.Kind, k.ID)
		}
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestPlanKeepsPending(t *testing.T) {
	env := setupTestEnv(t)
	env.sess.TouchStruct(env.strucHandle(t, "Foo"))

	rec := &snapshot.Recorder{}
	if err := env.sess.Plan(rec); err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	foo := ids.Struc("Foo")
	want := []string{
		"start",
		call("object", kind.Struct, foo),
		call("object", kind.StructMember, ids.Member(foo, 0)),
		"end",
	}
	if diff := cmp.Diff(want, rec.Calls); diff != "" {
		t.Errorf("Plan() calls mismatch (-want +got):\n%s", diff)
	}
	if got := env.sess.Pending().Total(); got != 2 {
		t.Errorf("Pending().Total() = %d, want 2", got)
	}
	if files, _ := env.store.List(); len(files) != 0 {
		t.Errorf("store holds %d files, want 0", len(files))
	}
}

func TestSaveEmptyCycle(t *testing.T) {
	env := setupTestEnv(t)

	stats, err := env.sess.Save(context.Background())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if stats.Written != 0 || stats.Deleted != 0 {
		t.Errorf("stats = %+v, want empty batch", stats)
	}
	files, _ := env.store.List()
	if len(files) != 0 {
		t.Errorf("store holds %d files, want 0", len(files))
	}
	if env.repo.commits != 0 {
		t.Errorf("commits = %d, want 0", env.repo.commits)
	}
}

func TestSaveWritesAndCommits(t *testing.T) {
	env := setupTestEnv(t)
	env.db.OnChange(env.sess.Notify)

	if err := env.db.SetComment(0x401000, "entry point"); err != nil {
		t.Fatalf("SetComment failed: %v", err)
	}
	stats, err := env.sess.Save(context.Background())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !stats.Committed || env.repo.commits != 1 {
		t.Errorf("Committed = %v, commits = %d, want one commit", stats.Committed, env.repo.commits)
	}

	files, err := env.store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	stack := ids.Stack(0x401000)
	want := []string{
		env.store.Path(kind.Function, ids.Function(0x401000)),
		env.store.Path(kind.BasicBlock, ids.EA(0x401000)),
		env.store.Path(kind.BasicBlock, ids.EA(0x401010)),
		env.store.Path(kind.StackFrame, stack),
		env.store.Path(kind.StackFrameMember, ids.Member(stack, -4)),
	}
	if diff := cmp.Diff(sorted(want), files); diff != "" {
		t.Errorf("store files mismatch (-want +got):\n%s", diff)
	}
	if !contains(env.repo.comments, "0x401000: modified") {
		t.Errorf("comments = %v, want a function marker", env.repo.comments)
	}
	if env.sess.Pending().Total() != 0 {
		t.Error("pending records survived Save")
	}
}

func TestSaveClearsPendingOnFailedCommit(t *testing.T) {
	env := setupTestEnv(t)
	env.repo.failCommit = true
	env.sess.TouchStruct(env.strucHandle(t, "Foo"))

	stats, err := env.sess.Save(context.Background())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if stats.Committed {
		t.Error("Committed = true, want false")
	}
	if got := env.sess.Pending().Total(); got != 0 {
		t.Errorf("Pending().Total() = %d, want 0", got)
	}
	files, _ := env.store.List()
	if len(files) != 2 {
		t.Errorf("store holds %d files, want the struct and its member", len(files))
	}
}

func TestLoadOrdering(t *testing.T) {
	env := setupTestEnv(t)
	rec := &snapshot.Recorder{}
	env.sess.listener = rec

	code := &snapshot.Object{ID: ids.EA(0x403000), Kind: kind.Code, Versions: []snapshot.Version{{Address: 0x403000}}}
	if err := env.store.Writer().VisitObject(code); err != nil {
		t.Fatalf("VisitObject failed: %v", err)
	}
	gone := ids.Struc("Gone")

	_, err := env.sess.Load(context.Background(), snapshot.ChangeSet{
		Updated: []string{env.store.Path(kind.Code, code.ID)},
		Deleted: []string{env.store.Path(kind.Struct, gone), "cache/bogus"},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{
		"start",
		"delete struc " + gone.String(),
		"object code " + code.ID.String(),
		"end",
	}
	if diff := cmp.Diff(want, rec.Calls); diff != "" {
		t.Errorf("replay mismatch (-want +got):\n%s", diff)
	}
}

func TestClosureDeletionBackPropagation(t *testing.T) {
	env := setupTestEnv(t)
	if err := export.New(env.db).AcceptAll(env.store.Writer()); err != nil {
		t.Fatalf("AcceptAll failed: %v", err)
	}
	color := ids.Enum("Color")
	red := ids.EnumMember(color, "RED")
	if err := env.store.Writer().VisitDeleted(kind.EnumMember, red); err != nil {
		t.Fatalf("VisitDeleted failed: %v", err)
	}

	files, err := env.sess.Closure(context.Background(), snapshot.ChangeSet{
		Deleted: []string{env.store.Path(kind.EnumMember, red)},
	})
	if err != nil {
		t.Fatalf("Closure failed: %v", err)
	}
	if diff := cmp.Diff([]string{env.store.Path(kind.Enum, color)}, files); diff != "" {
		t.Errorf("Closure() mismatch (-want +got):\n%s", diff)
	}
}

func TestClosureIncludesReferences(t *testing.T) {
	env := setupTestEnv(t)
	foo := env.strucHandle(t, "Foo")
	en, _ := env.db.EnumByName("Color")
	if _, err := env.db.AddMember(foo, "color", 4, 4, en); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := export.New(env.db).AcceptAll(env.store.Writer()); err != nil {
		t.Fatalf("AcceptAll failed: %v", err)
	}

	fooID := ids.Struc("Foo")
	files, err := env.sess.Closure(context.Background(), snapshot.ChangeSet{
		Updated: []string{env.store.Path(kind.StructMember, ids.Member(fooID, 4))},
	})
	if err != nil {
		t.Fatalf("Closure failed: %v", err)
	}
	for _, p := range []string{
		env.store.Path(kind.StructMember, ids.Member(fooID, 4)),
		env.store.Path(kind.Struct, fooID),
		env.store.Path(kind.Enum, ids.Enum("Color")),
	} {
		if !contains(files, p) {
			t.Errorf("closure misses %s", p)
		}
	}
}

func TestUpdateFiltersOutsidePaths(t *testing.T) {
	env := setupTestEnv(t)
	rec := &snapshot.Recorder{}
	env.sess.listener = rec
	env.repo.changes = snapshot.ChangeSet{Updated: []string{"src/main.go", "README.md"}}

	stats, err := env.sess.Update(context.Background())
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if stats.Updated != 0 {
		t.Errorf("Updated = %d, want 0", stats.Updated)
	}
	if len(rec.Calls) != 0 {
		t.Errorf("listener calls = %v, want none", rec.Calls)
	}
	if env.repo.confirms != 1 {
		t.Errorf("confirms = %d, want 1", env.repo.confirms)
	}
}

func TestUpdatePropagatesRepositoryError(t *testing.T) {
	env := setupTestEnv(t)
	env.repo.updateErr = errors.New("network down")
	if _, err := env.sess.Update(context.Background()); err == nil {
		t.Error("Update succeeded, want error")
	}
	if env.repo.confirms != 0 {
		t.Errorf("confirms = %d, want 0", env.repo.confirms)
	}
}

// failingVisitor rejects every object.
type failingVisitor struct {
	err error
}

func (f failingVisitor) VisitStart() error                    { return nil }
func (f failingVisitor) VisitEnd() error                      { return nil }
func (f failingVisitor) VisitDeleted(kind.Kind, ids.ID) error { return f.err }
func (f failingVisitor) VisitObject(*snapshot.Object) error   { return f.err }

func TestUpdateConfirmsOnlyAfterPersist(t *testing.T) {
	env := setupTestEnv(t)
	if err := export.New(env.db).AcceptAll(env.store.Writer()); err != nil {
		t.Fatalf("AcceptAll failed: %v", err)
	}
	env.repo.changes = snapshot.ChangeSet{
		Updated: []string{env.store.Path(kind.Enum, ids.Enum("Color"))},
	}

	persistErr := errors.New("disk full")
	persists := 0
	env.sess.persist = func(ctx context.Context) error {
		persists++
		return persistErr
	}
	if _, err := env.sess.Update(context.Background()); !errors.Is(err, persistErr) {
		t.Fatalf("Update error = %v, want %v", err, persistErr)
	}
	if env.repo.confirms != 0 {
		t.Fatalf("confirms after failed persist = %d, want 0", env.repo.confirms)
	}

	persistErr = nil
	stats, err := env.sess.Update(context.Background())
	if err != nil {
		t.Fatalf("retried Update failed: %v", err)
	}
	if stats.Updated != 1 || stats.Files == 0 {
		t.Errorf("retried Update stats = %+v", stats)
	}
	if env.repo.confirms != 1 || persists != 2 {
		t.Errorf("confirms = %d, persists = %d; want 1, 2", env.repo.confirms, persists)
	}
}

func TestUpdateKeepsRevisionWhenLoadFails(t *testing.T) {
	env := setupTestEnv(t)
	if err := export.New(env.db).AcceptAll(env.store.Writer()); err != nil {
		t.Fatalf("AcceptAll failed: %v", err)
	}
	env.repo.changes = snapshot.ChangeSet{
		Updated: []string{env.store.Path(kind.Enum, ids.Enum("Color"))},
	}
	env.sess.listener = failingVisitor{err: errors.New("listener down")}

	if _, err := env.sess.Update(context.Background()); err == nil {
		t.Fatal("Update succeeded, want error")
	}
	if env.repo.confirms != 0 {
		t.Errorf("confirms = %d, want 0", env.repo.confirms)
	}
}

func TestSaveThenLoadIntoAnotherDatabase(t *testing.T) {
	src := setupTestEnv(t)
	if err := export.New(src.db).AcceptAll(src.store.Writer()); err != nil {
		t.Fatalf("AcceptAll failed: %v", err)
	}
	all, _ := src.store.List()

	dst := memhost.New()
	sess := New(Config{DB: dst, Repo: &fakeRepo{}, Store: src.store, Listener: dst.Listener()})
	if _, err := sess.Load(context.Background(), snapshot.ChangeSet{Updated: all}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := dst.StrucByName("Foo"); !ok {
		t.Fatal("struct Foo not replayed")
	}

	// Rename on the source side, save, and replay the change set.
	src.db.OnChange(src.sess.Notify)
	if err := src.db.RenameStruct(src.strucHandle(t, "Foo"), "Bar"); err != nil {
		t.Fatalf("RenameStruct failed: %v", err)
	}
	if _, err := src.sess.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	foo, bar := ids.Struc("Foo"), ids.Struc("Bar")
	cs := snapshot.ChangeSet{
		Updated: []string{
			src.store.Path(kind.Struct, bar),
			src.store.Path(kind.StructMember, ids.Member(bar, 0)),
		},
		Deleted: []string{
			src.store.Path(kind.Struct, foo),
			src.store.Path(kind.StructMember, ids.Member(foo, 0)),
		},
	}
	if _, err := sess.Load(context.Background(), cs); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := dst.StrucByName("Foo"); ok {
		t.Error("struct Foo survived the rename")
	}
	h, ok := dst.StrucByName("Bar")
	if !ok {
		t.Fatal("struct Bar not replayed")
	}
	if st, _ := dst.Struc(h); len(st.Members) != 1 {
		t.Errorf("Bar has %d members, want 1", len(st.Members))
	}
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func sorted(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}
