package git

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yatools/yasync/internal/vcs"
)

// HasRemote returns true if any remote is configured.
func (g *Git) HasRemote() bool {
	out, err := g.run("remote")
	return err == nil && vcs.TrimOutput(out) != ""
}

// GetRemotes parses "git remote -v", preferring fetch URLs.
func (g *Git) GetRemotes() ([]vcs.RemoteInfo, error) {
	out, err := g.run("remote", "-v")
	if err != nil {
		return nil, fmt.Errorf("git remote -v failed: %w", err)
	}
	return parseRemotes(string(out)), nil
}

func parseRemotes(output string) []vcs.RemoteInfo {
	urls := make(map[string]string)
	for _, line := range vcs.ParseLines([]byte(output)) {
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		name, url := parts[0], parts[1]
		if len(parts) >= 3 && strings.Contains(parts[2], "fetch") {
			urls[name] = url
		} else if _, exists := urls[name]; !exists {
			urls[name] = url
		}
	}

	result := make([]vcs.RemoteInfo, 0, len(urls))
	for name, url := range urls {
		result = append(result, vcs.RemoteInfo{Name: name, URL: url})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// currentBranch returns the checked out branch, or "" when HEAD is detached.
func (g *Git) currentBranch() string {
	out, err := g.run("symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		return ""
	}
	return vcs.TrimOutput(out)
}

// target fills in the remote and ref defaults: the branch's configured
// remote or "origin", and the current branch.
func (g *Git) target(remote, ref string) (string, string, error) {
	branch := g.currentBranch()
	if remote == "" && branch != "" {
		if out, err := g.run("config", "--get", "branch."+branch+".remote"); err == nil {
			remote = vcs.TrimOutput(out)
		}
	}
	if remote == "" {
		remote = "origin"
	}
	if ref == "" {
		ref = branch
	}
	if ref == "" {
		return "", "", vcs.ErrDetached
	}
	return remote, ref, nil
}

// Pull pulls ref from remote. It is a no-op without remotes.
func (g *Git) Pull(ctx context.Context, opts vcs.PullOptions) error {
	if !g.HasRemote() {
		return nil
	}
	remote, ref, err := g.target(opts.Remote, opts.Ref)
	if err != nil {
		return err
	}

	args := []string{"pull"}
	if opts.Rebase {
		args = append(args, "--rebase")
	}
	if opts.FFOnly {
		args = append(args, "--ff-only")
	}
	args = append(args, remote, ref)

	if _, err := g.Exec(ctx, args...); err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "CONFLICT") || strings.Contains(msg, "conflict"):
			return fmt.Errorf("%w: %v", vcs.ErrConflicts, err)
		case strings.Contains(msg, "non-fast-forward") || strings.Contains(msg, "Not possible to fast-forward"):
			return fmt.Errorf("%w: %v", vcs.ErrMergeRequired, err)
		}
		return fmt.Errorf("git pull failed: %w", err)
	}
	return nil
}

// Push pushes ref to remote. It is a no-op without remotes.
func (g *Git) Push(ctx context.Context, opts vcs.PushOptions) error {
	if !g.HasRemote() {
		return nil
	}
	remote, ref, err := g.target(opts.Remote, opts.Ref)
	if err != nil {
		return err
	}

	args := []string{"push"}
	if opts.SetUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, ref)

	if _, err := g.Exec(ctx, args...); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "rejected") || strings.Contains(msg, "non-fast-forward") {
			return fmt.Errorf("%w: %v", vcs.ErrPushRejected, err)
		}
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}

// HasConflicts reports unmerged paths (DD, AU, UD, UA, DU, AA, UU).
func (g *Git) HasConflicts() (bool, error) {
	out, err := g.run("status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 2 {
			continue
		}
		switch line[:2] {
		case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
			return true, nil
		}
	}
	return false, nil
}
