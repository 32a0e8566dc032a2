package livedb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/yatools/yasync/internal/host"
	"github.com/yatools/yasync/internal/host/memhost"
)

func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "live.db")
}

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// sampleDB returns a database exercising every table, including a handle
// above the signed 64-bit range.
func sampleDB(t *testing.T) *memhost.DB {
	t.Helper()
	d := memhost.New()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(d.AddSegment(0x400000, 0x500000, ".text"))
	must(d.AddFunction(0x401000, 0x401020, "main", []host.Block{
		{Start: 0x401000, End: 0x401010},
		{Start: 0x401010, End: 0x401020},
	}))
	must(d.SetComment(0x401000, "entry"))
	must(d.MakeCode(0x401000, 4))
	frame, err := d.AddFrame(0x401000)
	must(err)
	_, err = d.AddMember(frame, "var_4", -4, 4, 0)
	must(err)
	st, err := d.AddStruct("Foo")
	must(err)
	_, err = d.AddMember(st, "bar", 0, 4, 0)
	must(err)
	en, err := d.AddEnum("Color", false)
	must(err)
	_, err = d.AddEnumMember(en, "RED", 1)
	must(err)
	must(d.MakeData(0x402000, 4))
	must(d.SetName(0x402000, "g_count"))
	return d
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t, testDBPath(t))

	for _, table := range []string{"meta", "segments", "items", "funcs", "strucs", "enums"} {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "with space", "live.db"))
	ctx := context.Background()

	// Hold two connections at once so the pool cannot hand back the same one.
	first, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := db.conn.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for i, c := range []*sql.Conn{first, second} {
		var timeout int
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("conn %d: busy_timeout query failed: %v", i, err)
		}
		if timeout != 5000 {
			t.Errorf("conn %d: busy_timeout = %d, want 5000", i, timeout)
		}
		var mode string
		if err := c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("conn %d: journal_mode query failed: %v", i, err)
		}
		if mode != "wal" {
			t.Errorf("conn %d: journal_mode = %q, want wal", i, mode)
		}
	}
}

func TestLoad_Empty(t *testing.T) {
	db := openTestDB(t, testDBPath(t))

	d, err := db.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if n := len(d.Funcs()) + len(d.Items()) + len(d.Strucs()) + len(d.Enums()); n != 0 {
		t.Errorf("empty database loaded %d entities", n)
	}
	at, err := db.SavedAt(context.Background())
	if err != nil {
		t.Fatalf("SavedAt() failed: %v", err)
	}
	if !at.IsZero() {
		t.Errorf("SavedAt() = %v, want zero", at)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := testDBPath(t)
	want := sampleDB(t)

	db := openTestDB(t, path)
	if err := db.Save(want); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	db.Close()

	reopened := openTestDB(t, path)
	got, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(want.State(), got.State(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("State mismatch (-want +got):\n%s", diff)
	}

	counts, err := reopened.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	wantCounts := map[string]int{"segments": 1, "items": 2, "funcs": 1, "strucs": 2, "enums": 1}
	if diff := cmp.Diff(wantCounts, counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_ReplacesPreviousContents(t *testing.T) {
	db := openTestDB(t, testDBPath(t))
	d := sampleDB(t)
	if err := db.Save(d); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if err := d.DeleteFunction(0x401000); err != nil {
		t.Fatalf("DeleteFunction failed: %v", err)
	}
	if err := db.Save(d); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, ok := got.FuncAt(0x401000); ok {
		t.Error("deleted function was loaded back")
	}
	if diff := cmp.Diff(d.State(), got.State(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("State mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_KeepsHandleAllocation(t *testing.T) {
	db := openTestDB(t, testDBPath(t))
	d := sampleDB(t)
	if err := db.Save(d); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	fresh, err := got.AddStruct("Fresh")
	if err != nil {
		t.Fatalf("AddStruct failed: %v", err)
	}
	if _, ok := d.Struc(fresh); ok {
		t.Errorf("loaded database reused live handle %X", fresh)
	}
}

func TestLoad_RejectsNewerSchema(t *testing.T) {
	db := openTestDB(t, testDBPath(t))
	if _, err := db.conn.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', '99')`); err != nil {
		t.Fatal(err)
	}
	_, err := db.Load()
	if !errors.Is(err, ErrSchemaVersion) {
		t.Errorf("Load() error = %v, want ErrSchemaVersion", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	db, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}
