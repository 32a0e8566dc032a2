package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/yatools/yasync/internal/vcs"
)

// Diff lists files changed between from and to. Renames are reported as a
// delete plus an add so every path is seen under its own name.
func (g *Git) Diff(ctx context.Context, from, to string, paths ...string) ([]vcs.FileStatus, error) {
	if from == "" {
		from = emptyTree
	}
	if to == "" {
		to = "HEAD"
	}
	args := []string{"diff", "--name-status", "--no-renames", from, to}
	if len(paths) > 0 {
		args = append(append(args, "--"), paths...)
	}
	out, err := g.Exec(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}
	return parseNameStatus(string(out)), nil
}

// parseNameStatus parses "S\tpath" lines. Only the first letter of the
// status is kept, dropping scores such as "M100".
func parseNameStatus(output string) []vcs.FileStatus {
	var changes []vcs.FileStatus
	for _, line := range strings.Split(output, "\n") {
		code, path, ok := strings.Cut(line, "\t")
		if !ok || code == "" {
			continue
		}
		changes = append(changes, vcs.FileStatus{
			Path:   path,
			Status: vcs.ParseStatusCode(code[:1]),
		})
	}
	return changes
}
