// Package vcs provides the version control abstraction the snapshot cache is
// published through.
//
// The cache directory lives inside a git or jj working copy. Saving commits
// the cache files and optionally pushes; updating pulls and diffs the last
// synced revision against the new head to learn which object files changed.
//
// Implementations register themselves from the git and jj subpackages:
//
//	import _ "github.com/yatools/yasync/internal/vcs/git"
//
//	v, err := vcs.GetForPath(root)
package vcs

import "context"

// Type identifies the version control system in use.
type Type string

const (
	// TypeGit is a plain git repository.
	TypeGit Type = "git"

	// TypeJJ is a jj repository without a colocated .git directory.
	TypeJJ Type = "jj"

	// TypeColocate is a jj repository sharing its working copy with git.
	TypeColocate Type = "colocate"
)

// VCS is the set of operations the sync layer needs from a repository.
//
// All paths are relative to RepoRoot unless stated otherwise.
type VCS interface {
	// Name returns the backend type.
	Name() Type

	// Version returns the version of the underlying binary.
	Version() (string, error)

	// RepoRoot returns the absolute working copy root.
	RepoRoot() (string, error)

	// IsInVCS reports whether the instance is bound to a repository.
	IsInVCS() bool

	// HasChanges reports uncommitted changes, limited to paths when given.
	HasChanges(paths ...string) (bool, error)

	// Add stages paths for the next commit. A no-op for jj.
	Add(paths []string) error

	// Status lists working copy changes, limited to paths when given.
	Status(paths ...string) ([]FileStatus, error)

	// Commit records the staged changes.
	Commit(ctx context.Context, opts CommitOptions) error

	// Head returns the id of the most recent commit, or "" for an
	// empty repository.
	Head(ctx context.Context) (string, error)

	// Diff lists files changed between two revisions. An empty from
	// means the empty tree.
	Diff(ctx context.Context, from, to string, paths ...string) ([]FileStatus, error)

	// HasRemote reports whether any remote is configured.
	HasRemote() bool

	// GetRemotes lists configured remotes.
	GetRemotes() ([]RemoteInfo, error)

	// Pull brings remote changes into the working copy. Without a
	// remote it does nothing.
	Pull(ctx context.Context, opts PullOptions) error

	// Push publishes local commits. Without a remote it does nothing.
	Push(ctx context.Context, opts PushOptions) error

	// HasConflicts reports unresolved conflicts in the working copy.
	HasConflicts() (bool, error)

	// Exec runs a raw backend command in the repository root.
	Exec(ctx context.Context, args ...string) ([]byte, error)
}

// RemoteInfo describes a configured remote.
type RemoteInfo struct {
	Name string
	URL  string
}

// StatusCode is a single-letter file state as reported by git.
type StatusCode string

const (
	StatusUnmodified StatusCode = " "
	StatusModified   StatusCode = "M"
	StatusAdded      StatusCode = "A"
	StatusDeleted    StatusCode = "D"
	StatusRenamed    StatusCode = "R"
	StatusCopied     StatusCode = "C"
	StatusUntracked  StatusCode = "?"
	StatusIgnored    StatusCode = "!"
	StatusConflict   StatusCode = "U"
)

// ParseStatusCode maps a status letter to a StatusCode. Type changes ("T")
// count as modifications and unknown letters map to StatusUnmodified.
func ParseStatusCode(code string) StatusCode {
	if code == "T" {
		return StatusModified
	}
	switch StatusCode(code) {
	case StatusModified, StatusAdded, StatusDeleted, StatusRenamed,
		StatusCopied, StatusUntracked, StatusIgnored, StatusConflict:
		return StatusCode(code)
	}
	return StatusUnmodified
}

// Removed reports whether the file no longer exists after the change.
func (s StatusCode) Removed() bool {
	return s == StatusDeleted
}

// Present reports whether the file exists with new content after the change.
func (s StatusCode) Present() bool {
	switch s {
	case StatusModified, StatusAdded, StatusRenamed, StatusCopied, StatusUntracked:
		return true
	}
	return false
}

// FileStatus is one changed file.
type FileStatus struct {
	Path       string
	Status     StatusCode
	StagedCode StatusCode
}

// CommitOptions configures Commit.
type CommitOptions struct {
	Message string

	// Paths limits the commit to these files and stages them first.
	Paths []string

	Author     string
	NoGPGSign  bool
	NoVerify   bool
	AllowEmpty bool
}

// PullOptions configures Pull.
type PullOptions struct {
	Remote string
	Ref    string
	Rebase bool
	FFOnly bool
}

// PushOptions configures Push.
type PushOptions struct {
	Remote      string
	Ref         string
	SetUpstream bool
}
