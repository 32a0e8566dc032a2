package jj

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yatools/yasync/internal/vcs"
)

func setupTestRepo(t *testing.T, colocate bool) *JJ {
	t.Helper()
	if !vcs.IsJJAvailable() {
		t.Skip("jj not available")
	}
	t.Setenv("JJ_USER", "Test User")
	t.Setenv("JJ_EMAIL", "test@example.com")

	j, err := Init(t.TempDir(), colocate)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	return j
}

func writeFile(t *testing.T, j *JJ, rel, content string) {
	t.Helper()
	path := filepath.Join(j.repoRoot, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNew(t *testing.T) {
	j := setupTestRepo(t, false)

	if j.Name() != vcs.TypeJJ {
		t.Errorf("Name() = %v, want %v", j.Name(), vcs.TypeJJ)
	}
	if !j.IsInVCS() {
		t.Error("IsInVCS() = false, want true")
	}
	if _, err := New(t.TempDir()); err != vcs.ErrNotInVCS {
		t.Errorf("New() outside repo error = %v, want ErrNotInVCS", err)
	}
}

func TestInitColocated(t *testing.T) {
	j := setupTestRepo(t, true)

	if j.Name() != vcs.TypeColocate {
		t.Errorf("Name() = %v, want %v", j.Name(), vcs.TypeColocate)
	}
	if _, err := os.Stat(filepath.Join(j.repoRoot, ".git")); err != nil {
		t.Errorf(".git not created: %v", err)
	}
}

func TestCommitHeadAndDiff(t *testing.T) {
	j := setupTestRepo(t, false)
	ctx := context.Background()

	head, err := j.Head(ctx)
	if err != nil {
		t.Fatalf("Head() failed: %v", err)
	}
	if head != "" {
		t.Errorf("Head() on fresh repo = %q, want empty", head)
	}

	writeFile(t, j, "cache/struc/0000000000000001.yaml", "a\n")
	changed, err := j.HasChanges()
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("HasChanges() = false after writing a file")
	}

	if err := j.Commit(ctx, vcs.CommitOptions{Message: "first"}); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	first, err := j.Head(ctx)
	if err != nil || first == "" {
		t.Fatalf("Head() = %q, %v", first, err)
	}

	changes, err := j.Diff(ctx, "", first, "cache")
	if err != nil {
		t.Fatal(err)
	}
	want := []vcs.FileStatus{{Path: "cache/struc/0000000000000001.yaml", Status: vcs.StatusAdded}}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}

func TestPullPushWithoutRemote(t *testing.T) {
	j := setupTestRepo(t, false)
	ctx := context.Background()

	if j.HasRemote() {
		t.Fatal("HasRemote() = true on fresh repo")
	}
	if err := j.Pull(ctx, vcs.PullOptions{}); err != nil {
		t.Errorf("Pull() without remote: %v", err)
	}
	if err := j.Push(ctx, vcs.PushOptions{Ref: "main"}); err != nil {
		t.Errorf("Push() without remote: %v", err)
	}
}

func TestParseSummary(t *testing.T) {
	out := "M cache/a.yaml\nA cache/b.yaml\nD cache/c.yaml\nR cache/{old.yaml => new.yaml}\nC x.yaml => y.yaml\n"
	want := []vcs.FileStatus{
		{Path: "cache/a.yaml", Status: vcs.StatusModified},
		{Path: "cache/b.yaml", Status: vcs.StatusAdded},
		{Path: "cache/c.yaml", Status: vcs.StatusDeleted},
		{Path: "cache/old.yaml", Status: vcs.StatusDeleted},
		{Path: "cache/new.yaml", Status: vcs.StatusAdded},
		{Path: "y.yaml", Status: vcs.StatusAdded},
	}
	if diff := cmp.Diff(want, parseSummary(out)); diff != "" {
		t.Errorf("parseSummary() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitRename(t *testing.T) {
	tests := []struct {
		in       string
		from, to string
	}{
		{"a/{b => c}/d", "a/b/d", "a/c/d"},
		{"{a => b}", "a", "b"},
		{"a/{ => b}/c", "a/c", "a/b/c"},
		{"x => y", "x", "y"},
		{"plain", "plain", "plain"},
	}
	for _, tt := range tests {
		from, to := splitRename(tt.in)
		if from != tt.from || to != tt.to {
			t.Errorf("splitRename(%q) = %q, %q, want %q, %q", tt.in, from, to, tt.from, tt.to)
		}
	}
}
