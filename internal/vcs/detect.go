package vcs

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DetectionResult describes the repository found around a path.
type DetectionResult struct {
	Type     Type
	RepoRoot string

	// VCSDir is the .jj or .git path that marked RepoRoot.
	VCSDir string

	HasGit bool
	HasJJ  bool

	// IsWorktree is set when .git is a file pointing into another
	// repository's worktrees directory.
	IsWorktree bool
}

// Detect walks up from path until it finds a .jj directory or a .git entry.
// A directory holding both is reported as TypeColocate.
//
// Returns ErrNotInVCS if the filesystem root is reached.
func Detect(path string) (*DetectionResult, error) {
	current, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	for {
		result := &DetectionResult{RepoRoot: current}

		jjDir := filepath.Join(current, ".jj")
		if info, err := os.Stat(jjDir); err == nil && info.IsDir() {
			result.HasJJ = true
			result.VCSDir = jjDir
		}

		gitPath := filepath.Join(current, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			result.HasGit = true
			result.IsWorktree = info.Mode().IsRegular()
			if result.VCSDir == "" {
				result.VCSDir = gitPath
				if result.IsWorktree {
					result.VCSDir = resolveGitDir(current, gitPath)
				}
			}
		}

		switch {
		case result.HasJJ && result.HasGit:
			result.Type = TypeColocate
			return result, nil
		case result.HasJJ:
			result.Type = TypeJJ
			return result, nil
		case result.HasGit:
			result.Type = TypeGit
			return result, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, ErrNotInVCS
		}
		current = parent
	}
}

// resolveGitDir reads the "gitdir: <path>" line of a worktree's .git file.
func resolveGitDir(worktree, gitFile string) string {
	content, err := os.ReadFile(gitFile)
	if err != nil {
		return gitFile
	}
	line := strings.TrimSpace(string(content))
	dir, ok := strings.CutPrefix(line, "gitdir: ")
	if !ok {
		return gitFile
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(worktree, dir)
	}
	return filepath.Clean(dir)
}

// PreferredVCS returns the backend to use in colocated repositories. The
// YA_VCS environment variable ("git" or "jj") overrides the default of jj.
func PreferredVCS() Type {
	switch strings.ToLower(os.Getenv("YA_VCS")) {
	case "git":
		return TypeGit
	case "jj", "jujutsu":
		return TypeJJ
	}
	return TypeJJ
}

// IsJJAvailable reports whether a jj binary is on PATH.
func IsJJAvailable() bool {
	_, err := exec.LookPath("jj")
	return err == nil
}

// IsGitAvailable reports whether a git binary is on PATH.
func IsGitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}
