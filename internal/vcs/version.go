package vcs

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// MinVersions are the oldest binaries providing every command the backends
// run. jj renamed "branch" to "bookmark" in 0.22.
var MinVersions = map[Type]string{
	TypeGit: "2.20.0",
	TypeJJ:  "0.22.0",
}

// CheckVersion returns the version of v's binary, with ErrVersionTooOld when
// it predates MinVersions.
func CheckVersion(v VCS) (string, error) {
	version, err := v.Version()
	if err != nil {
		return "", err
	}
	if min, ok := MinVersions[v.Name()]; ok && !AtLeast(version, min) {
		return version, fmt.Errorf("%w: %s %s, need %s or newer", ErrVersionTooOld, v.Name(), version, min)
	}
	return version, nil
}

// AtLeast reports whether version is min or newer. A version semver cannot
// parse counts as new enough.
func AtLeast(version, min string) bool {
	v := canonicalVersion(version)
	if !semver.IsValid(v) {
		return true
	}
	return semver.Compare(v, canonicalVersion(min)) >= 0
}

// canonicalVersion turns "2.39.3 (Apple Git-145)" into "v2.39.3".
func canonicalVersion(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		s = f[0]
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return s
}
