package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/yatools/yasync/internal/vcs"
)

// HasChanges reports uncommitted changes, limited to paths when given.
func (g *Git) HasChanges(paths ...string) (bool, error) {
	statuses, err := g.Status(paths...)
	if err != nil {
		return false, err
	}
	return len(statuses) > 0, nil
}

// Add stages paths, including deletions under them.
func (g *Git) Add(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "-A", "--"}, paths...)
	if _, err := g.run(args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Status parses "git status --porcelain" output.
func (g *Git) Status(paths ...string) ([]vcs.FileStatus, error) {
	args := []string{"status", "--porcelain", "--untracked-files=all"}
	if len(paths) > 0 {
		args = append(append(args, "--"), paths...)
	}
	out, err := g.run(args...)
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}
	return parsePorcelain(string(out)), nil
}

// parsePorcelain parses "XY path" lines, where X is the staged state and Y
// the unstaged one.
func parsePorcelain(output string) []vcs.FileStatus {
	var statuses []vcs.FileStatus
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if _, to, ok := strings.Cut(path, " -> "); ok {
			path = to
		}
		statuses = append(statuses, vcs.FileStatus{
			Path:       strings.Trim(path, `"`),
			Status:     vcs.ParseStatusCode(line[1:2]),
			StagedCode: vcs.ParseStatusCode(line[0:1]),
		})
	}
	return statuses
}

// Commit stages opts.Paths and commits them.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}
	if err := g.Add(opts.Paths); err != nil {
		return err
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.NoGPGSign {
		args = append(args, "--no-gpg-sign")
	}
	if opts.NoVerify {
		args = append(args, "--no-verify")
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	if len(opts.Paths) > 0 {
		args = append(append(args, "--"), opts.Paths...)
	}

	if _, err := g.Exec(ctx, args...); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}

// Head returns the full hash of HEAD, or "" before the first commit.
func (g *Git) Head(ctx context.Context) (string, error) {
	out, err := g.Exec(ctx, "rev-parse", "--verify", "-q", "HEAD")
	if err != nil {
		if vcs.GetExitCode(err) == 1 {
			return "", nil
		}
		return "", fmt.Errorf("git rev-parse HEAD failed: %w", err)
	}
	return vcs.TrimOutput(out), nil
}
