package vcs

import "errors"

// Errors returned by VCS operations. Check them with errors.Is.
var (
	// ErrNotInVCS is returned outside any git or jj repository.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the git or jj binary is missing.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	ErrNoRemote = errors.New("no remote configured")

	ErrConflicts = errors.New("unresolved conflicts")

	// ErrDetached is returned when pull or push needs a branch but HEAD
	// is detached.
	ErrDetached = errors.New("not on a branch or bookmark")

	// ErrPushRejected is returned for non-fast-forward pushes.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrMergeRequired is returned when a pull cannot fast-forward.
	ErrMergeRequired = errors.New("merge required")

	ErrTimeout = errors.New("operation timed out")

	// ErrVersionTooOld means the backend binary lacks commands ya runs.
	ErrVersionTooOld = errors.New("VCS binary too old")
)

// IsRetryable reports whether err is likely to clear up on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrPushRejected) ||
		errors.Is(err, ErrMergeRequired)
}

// IsUserActionRequired reports whether err needs a human to resolve
// history or conflicts before syncing can continue.
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConflicts) ||
		errors.Is(err, ErrMergeRequired) ||
		errors.Is(err, ErrPushRejected)
}

// IsFatal reports whether no VCS operation can succeed.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotInVCS) || errors.Is(err, ErrVCSNotAvailable)
}
