// Package git implements vcs.VCS on top of the git command line.
//
// Importing the package registers the backend:
//
//	import _ "github.com/yatools/yasync/internal/vcs/git"
package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yatools/yasync/internal/vcs"
)

func init() {
	vcs.Register(vcs.TypeGit, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}

// emptyTree is the id of git's empty tree object, the diff base for a
// cache that has never been synced.
const emptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Git implements vcs.VCS for a git working copy.
type Git struct {
	repoRoot string
	gitDir   string
}

// New binds to the repository containing path.
func New(path string) (*Git, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	out, err := vcs.ExecContext(context.Background(), vcs.DefaultTimeout, absPath,
		"git", "rev-parse", "--git-dir", "--show-toplevel")
	if err != nil {
		return nil, vcs.ErrNotInVCS
	}
	lines := vcs.ParseLines(out)
	if len(lines) < 2 {
		return nil, fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 2", len(lines))
	}

	gitDir := lines[0]
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absPath, gitDir)
	}
	root := filepath.FromSlash(lines[1])
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &Git{repoRoot: root, gitDir: gitDir}, nil
}

// Init creates a git repository at path and binds to it.
func Init(path string) (*Git, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := vcs.ExecContext(context.Background(), vcs.DefaultTimeout, absPath, "git", "init"); err != nil {
		return nil, fmt.Errorf("failed to initialize git repository: %w", err)
	}
	return New(absPath)
}

func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// Version returns the git version, e.g. "2.39.0".
func (g *Git) Version() (string, error) {
	out, err := exec.Command("git", "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}
	return strings.TrimPrefix(vcs.TrimOutput(out), "git version "), nil
}

func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

func (g *Git) IsInVCS() bool {
	return g.repoRoot != ""
}

// Exec runs git with args in the repository root.
func (g *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, vcs.DefaultTimeout, g.repoRoot, "git", args...)
}

func (g *Git) run(args ...string) ([]byte, error) {
	return g.Exec(context.Background(), args...)
}
