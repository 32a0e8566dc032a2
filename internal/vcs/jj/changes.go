package jj

import (
	"context"
	"fmt"
	"strings"

	"github.com/yatools/yasync/internal/vcs"
)

// Add is a no-op; jj snapshots the working copy automatically.
func (j *JJ) Add(paths []string) error {
	return nil
}

// Status lists the changes in the working copy change.
func (j *JJ) Status(paths ...string) ([]vcs.FileStatus, error) {
	args := append([]string{"diff", "--summary", "-r", "@"}, paths...)
	out, err := j.output(context.Background(), args...)
	if err != nil {
		return nil, err
	}
	return parseSummary(out), nil
}

// HasChanges reports whether the working copy change touches paths.
func (j *JJ) HasChanges(paths ...string) (bool, error) {
	statuses, err := j.Status(paths...)
	if err != nil {
		return false, err
	}
	return len(statuses) > 0, nil
}

// Commit describes the working copy change and starts a new empty change
// on top of it. With Paths only those files go into the commit and the rest
// stay in the working copy.
func (j *JJ) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}
	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append([]string{"--config", "user.name=" + opts.Author}, args...)
	}
	args = append(args, opts.Paths...)
	if _, err := j.Exec(ctx, args...); err != nil {
		return fmt.Errorf("jj commit failed: %w", err)
	}
	return nil
}

// Head returns the commit id of "@-", or "" when it is the root commit.
func (j *JJ) Head(ctx context.Context) (string, error) {
	out, err := j.output(ctx, "log", "-r", "@-", "-n", "1", "--no-graph", "-T", "commit_id")
	if err != nil {
		return "", err
	}
	if out == rootCommit {
		return "", nil
	}
	return out, nil
}

// Diff lists files changed between two revisions. from defaults to the root
// commit and to defaults to "@-".
func (j *JJ) Diff(ctx context.Context, from, to string, paths ...string) ([]vcs.FileStatus, error) {
	if from == "" {
		from = "root()"
	}
	if to == "" {
		to = "@-"
	}
	args := append([]string{"diff", "--summary", "--from", from, "--to", to}, paths...)
	out, err := j.output(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseSummary(out), nil
}

// parseSummary parses "jj diff --summary" lines of the form "M path". A
// rename "R dir/{old => new}" becomes a delete of the old path and an add of
// the new one.
func parseSummary(output string) []vcs.FileStatus {
	var changes []vcs.FileStatus
	for _, line := range vcs.ParseLines([]byte(output)) {
		code, path, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		status := vcs.ParseStatusCode(code)
		if status == vcs.StatusRenamed || status == vcs.StatusCopied {
			from, to := splitRename(path)
			if status == vcs.StatusRenamed {
				changes = append(changes, vcs.FileStatus{Path: from, Status: vcs.StatusDeleted})
			}
			changes = append(changes, vcs.FileStatus{Path: to, Status: vcs.StatusAdded})
			continue
		}
		changes = append(changes, vcs.FileStatus{Path: path, Status: status})
	}
	return changes
}

// splitRename expands "pre{a => b}post" or "a => b" into both full paths.
func splitRename(path string) (string, string) {
	lb := strings.Index(path, "{")
	rb := strings.LastIndex(path, "}")
	if lb < 0 || rb < lb {
		from, to, ok := strings.Cut(path, " => ")
		if !ok {
			return path, path
		}
		return from, to
	}
	pre, post := path[:lb], path[rb+1:]
	from, to, _ := strings.Cut(path[lb+1:rb], " => ")
	join := func(mid string) string {
		return strings.ReplaceAll(pre+mid+post, "//", "/")
	}
	return join(from), join(to)
}

// HasConflicts reports whether "jj resolve --list" finds conflicted files.
func (j *JJ) HasConflicts() (bool, error) {
	out, err := j.output(context.Background(), "resolve", "--list")
	if err != nil {
		if strings.Contains(err.Error(), "No conflicts") {
			return false, nil
		}
		return false, err
	}
	return out != "", nil
}
