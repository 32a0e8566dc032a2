// Package jj implements vcs.VCS for Jujutsu.
//
// jj has no staging area: the working copy is itself a change, so Add is a
// no-op and Commit describes the working copy change and starts a new one
// on top of it. The last committed state is therefore always "@-".
package jj

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yatools/yasync/internal/vcs"
)

func init() {
	vcs.Register(vcs.TypeJJ, func(path string) (vcs.VCS, error) {
		return New(path)
	})
}

// rootCommit is the commit id jj reports for the virtual root commit.
const rootCommit = "0000000000000000000000000000000000000000"

// JJ implements vcs.VCS by running the jj binary.
type JJ struct {
	repoRoot    string
	isColocated bool
}

// New binds to an existing jj repository rooted at repoRoot.
func New(repoRoot string) (*JJ, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository root: %w", err)
	}
	if info, err := os.Stat(filepath.Join(absRoot, ".jj")); err != nil || !info.IsDir() {
		return nil, vcs.ErrNotInVCS
	}
	_, gitErr := os.Stat(filepath.Join(absRoot, ".git"))
	return &JJ{repoRoot: absRoot, isColocated: gitErr == nil}, nil
}

// Init runs "jj git init" at path, colocated with git when colocate is set.
func Init(path string, colocate bool) (*JJ, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	args := []string{"git", "init"}
	if colocate {
		args = append(args, "--colocate")
	}
	if _, err := vcs.ExecContext(context.Background(), vcs.DefaultTimeout, absPath, "jj", args...); err != nil {
		return nil, fmt.Errorf("failed to initialize jj repository: %w", err)
	}
	return New(absPath)
}

// Name returns TypeColocate when a .git directory sits next to .jj.
func (j *JJ) Name() vcs.Type {
	if j.isColocated {
		return vcs.TypeColocate
	}
	return vcs.TypeJJ
}

// Version parses "jj 0.32.0" into "0.32.0".
func (j *JJ) Version() (string, error) {
	out, err := exec.Command("jj", "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get jj version: %w", err)
	}
	parts := strings.Fields(vcs.TrimOutput(out))
	if len(parts) >= 2 {
		return parts[1], nil
	}
	return vcs.TrimOutput(out), nil
}

func (j *JJ) RepoRoot() (string, error) {
	return j.repoRoot, nil
}

func (j *JJ) IsInVCS() bool {
	return j.repoRoot != ""
}

// Exec runs jj with args in the repository root, mapping well-known
// failures onto vcs errors.
func (j *JJ) Exec(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "jj", args...)
	cmd.Dir = j.repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		switch {
		case strings.Contains(msg, "There is no jj repo"):
			return nil, vcs.ErrNotInVCS
		case strings.Contains(msg, "No git remote named"):
			return nil, fmt.Errorf("%w: %s", vcs.ErrNoRemote, strings.TrimSpace(msg))
		}
		return nil, fmt.Errorf("jj %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(msg))
	}
	return stdout.Bytes(), nil
}

func (j *JJ) output(ctx context.Context, args ...string) (string, error) {
	out, err := j.Exec(ctx, args...)
	if err != nil {
		return "", err
	}
	return vcs.TrimOutput(out), nil
}
