package jj

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yatools/yasync/internal/vcs"
)

// HasRemote returns true if any git remote is configured.
func (j *JJ) HasRemote() bool {
	remotes, err := j.GetRemotes()
	return err == nil && len(remotes) > 0
}

// GetRemotes parses "jj git remote list" lines of the form "name url".
func (j *JJ) GetRemotes() ([]vcs.RemoteInfo, error) {
	out, err := j.output(context.Background(), "git", "remote", "list")
	if err != nil {
		return nil, err
	}
	var remotes []vcs.RemoteInfo
	for _, line := range vcs.ParseLines([]byte(out)) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		remotes = append(remotes, vcs.RemoteInfo{Name: fields[0], URL: fields[1]})
	}
	sort.Slice(remotes, func(a, b int) bool { return remotes[a].Name < remotes[b].Name })
	return remotes, nil
}

// Pull fetches from the remote. With a Ref and Rebase set, the local
// changes are rebased onto the fetched bookmark so "@-" reflects it.
func (j *JJ) Pull(ctx context.Context, opts vcs.PullOptions) error {
	if !j.HasRemote() {
		return nil
	}
	args := []string{"git", "fetch"}
	if opts.Remote != "" {
		args = append(args, "--remote", opts.Remote)
	}
	if _, err := j.Exec(ctx, args...); err != nil {
		return fmt.Errorf("jj git fetch failed: %w", err)
	}

	if opts.Ref == "" || !opts.Rebase {
		return nil
	}
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	if _, err := j.Exec(ctx, "rebase", "-d", opts.Ref+"@"+remote); err != nil {
		return fmt.Errorf("jj rebase failed: %w", err)
	}
	if conflicted, err := j.HasConflicts(); err == nil && conflicted {
		return vcs.ErrConflicts
	}
	return nil
}

// Push moves the Ref bookmark to "@-" and pushes it.
func (j *JJ) Push(ctx context.Context, opts vcs.PushOptions) error {
	if !j.HasRemote() {
		return nil
	}
	if opts.Ref == "" {
		return vcs.ErrDetached
	}
	if _, err := j.Exec(ctx, "bookmark", "set", opts.Ref, "-r", "@-", "--allow-backwards"); err != nil {
		return fmt.Errorf("jj bookmark set failed: %w", err)
	}

	args := []string{"git", "push", "-b", opts.Ref}
	if opts.Remote != "" {
		args = append(args, "--remote", opts.Remote)
	}
	if opts.SetUpstream {
		args = append(args, "--allow-new")
	}
	if _, err := j.Exec(ctx, args...); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "rejected") || strings.Contains(msg, "non-fast-forward") {
			return fmt.Errorf("%w: %v", vcs.ErrPushRejected, err)
		}
		return err
	}
	return nil
}
