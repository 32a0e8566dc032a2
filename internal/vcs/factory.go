package vcs

import (
	"fmt"
	"sync"
)

// Factory creates VCS instances for paths, resolving colocated repositories
// to a preferred backend.
type Factory struct {
	preferred   Type
	enableCache bool
	available   func(Type) bool
}

var vcsCache sync.Map

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithPreferredType sets the backend used for colocated repositories.
// An empty type defers to PreferredVCS.
func WithPreferredType(t Type) FactoryOption {
	return func(f *Factory) {
		f.preferred = t
	}
}

// WithCache enables or disables per-path instance caching.
func WithCache(enabled bool) FactoryOption {
	return func(f *Factory) {
		f.enableCache = enabled
	}
}

// NewFactory returns a caching factory that prefers jj in colocated
// repositories unless YA_VCS says otherwise.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		enableCache: true,
		available:   binaryAvailable,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func binaryAvailable(t Type) bool {
	switch t {
	case TypeGit:
		return IsGitAvailable()
	case TypeJJ:
		return IsJJAvailable()
	}
	return false
}

// Create detects the repository around path and constructs its backend.
func (f *Factory) Create(path string) (VCS, error) {
	if f.enableCache {
		if cached, ok := vcsCache.Load(path); ok {
			return cached.(VCS), nil
		}
	}

	result, err := Detect(path)
	if err != nil {
		return nil, err
	}

	implType, err := f.implementationType(result)
	if err != nil {
		return nil, err
	}

	constructor := getConstructor(implType)
	if constructor == nil {
		return nil, fmt.Errorf("no registered constructor for VCS type: %s (available: %v)", implType, RegisteredTypes())
	}
	v, err := constructor(result.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s VCS instance: %w", implType, err)
	}

	if f.enableCache {
		vcsCache.Store(path, v)
	}
	return v, nil
}

// implementationType picks the backend for a detection result. Colocated
// repositories use the preferred backend when its binary exists and fall
// back to the other one.
func (f *Factory) implementationType(result *DetectionResult) (Type, error) {
	switch result.Type {
	case TypeGit, TypeJJ:
		if !f.available(result.Type) {
			return "", ErrVCSNotAvailable
		}
		return result.Type, nil
	case TypeColocate:
		preferred := f.preferred
		if preferred == "" {
			preferred = PreferredVCS()
		}
		other := TypeGit
		if preferred == TypeGit {
			other = TypeJJ
		}
		if f.available(preferred) {
			return preferred, nil
		}
		if f.available(other) {
			return other, nil
		}
		return "", ErrVCSNotAvailable
	}
	return "", ErrNotInVCS
}

// GetForPath returns a VCS for the repository containing path.
func GetForPath(path string) (VCS, error) {
	return NewFactory().Create(path)
}

// GetWithPreference returns a VCS for path, using preferred in colocated
// repositories. "auto" and "" behave like GetForPath.
func GetWithPreference(path string, preferred Type) (VCS, error) {
	if preferred == "auto" {
		preferred = ""
	}
	return NewFactory(WithPreferredType(preferred)).Create(path)
}

// ResetCache drops all cached instances.
func ResetCache() {
	vcsCache.Range(func(k, _ any) bool {
		vcsCache.Delete(k)
		return true
	})
}
