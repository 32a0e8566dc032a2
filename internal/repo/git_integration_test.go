package repo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yatools/yasync/internal/snapshot"
	"github.com/yatools/yasync/internal/vcs"
	"github.com/yatools/yasync/internal/vcs/git"
)

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func cloneRepo(t *testing.T, remote string) *Repository {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "clone")
	gitCmd(t, filepath.Dir(dir), "clone", "-q", remote, dir)
	gitCmd(t, dir, "config", "user.name", "Test User")
	gitCmd(t, dir, "config", "user.email", "test@example.com")
	gitCmd(t, dir, "config", "commit.gpgsign", "false")

	g, err := git.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	r, err := Open(g, Options{CacheDir: "cache", Push: true, Ref: "main"})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestGitRoundTrip(t *testing.T) {
	if !vcs.IsGitAvailable() {
		t.Skip("git not available")
	}
	ctx := context.Background()

	remote := filepath.Join(t.TempDir(), "remote.git")
	gitCmd(t, filepath.Dir(remote), "init", "-q", "--bare", "--initial-branch=main", remote)

	// Seed the remote so both clones share a first commit.
	seed := cloneRepo(t, remote)
	gitCmd(t, seed.Root(), "symbolic-ref", "HEAD", "refs/heads/main")
	writeCacheFile(t, seed, "cache/enum/00000000000000AA.yaml")
	if !seed.CommitCache(ctx) {
		t.Fatal("seed CommitCache() = false")
	}

	writer := cloneRepo(t, remote)
	reader := cloneRepo(t, remote)
	if err := reader.MarkSynced(ctx); err != nil {
		t.Fatal(err)
	}

	writeCacheFile(t, writer, "cache/function/0000000000401000.yaml")
	if err := os.Remove(filepath.Join(writer.Root(), "cache", "enum", "00000000000000AA.yaml")); err != nil {
		t.Fatal(err)
	}
	writer.AddComment("0x401000: modified")
	if !writer.CommitCache(ctx) {
		t.Fatal("writer CommitCache() = false")
	}

	cs, err := reader.UpdateCache(ctx)
	if err != nil {
		t.Fatalf("UpdateCache() failed: %v", err)
	}
	want := snapshot.ChangeSet{
		Updated: []string{"cache/function/0000000000401000.yaml"},
		Deleted: []string{"cache/enum/00000000000000AA.yaml"},
	}
	if diff := cmp.Diff(want, cs); diff != "" {
		t.Errorf("UpdateCache() mismatch (-want +got):\n%s", diff)
	}

	if err := reader.ConfirmUpdate(); err != nil {
		t.Fatal(err)
	}
	cs, err = reader.UpdateCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !cs.Empty() {
		t.Errorf("second UpdateCache() = %+v, want empty", cs)
	}
}

func writeCacheFile(t *testing.T, r *Repository, rel string) {
	t.Helper()
	path := filepath.Join(r.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("id: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}
