package snapshot

import (
	"fmt"
	"path"
	"strings"

	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
)

// Ext is the file extension of object files.
const Ext = ".yaml"

// Path returns the slash-separated store path of an object:
// <prefix>/<kind>/<HEX>.yaml.
func Path(prefix string, k kind.Kind, id ids.ID) string {
	return path.Join(prefix, k.String(), id.String()+Ext)
}

// ParsePath recovers kind and ID from a path built by Path. Only the last two
// elements are inspected, so any prefix is accepted.
func ParsePath(p string) (kind.Kind, ids.ID, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	base := path.Base(p)
	if !strings.HasSuffix(base, Ext) {
		return kind.Unknown, ids.Zero, fmt.Errorf("%s: %w", p, ErrBadPath)
	}
	k := kind.Parse(path.Base(path.Dir(p)))
	if k == kind.Unknown {
		return kind.Unknown, ids.Zero, fmt.Errorf("%s: unknown kind: %w", p, ErrBadPath)
	}
	hex := strings.TrimSuffix(base, Ext)
	if len(hex) != 16 {
		return kind.Unknown, ids.Zero, fmt.Errorf("%s: %w", p, ErrBadPath)
	}
	id, err := ids.Parse(hex)
	if err != nil {
		return kind.Unknown, ids.Zero, fmt.Errorf("%s: %w", p, ErrBadPath)
	}
	return k, id, nil
}

// UnderPrefix reports whether p lies below the store prefix.
func UnderPrefix(prefix, p string) bool {
	prefix = strings.Trim(path.Clean(strings.ReplaceAll(prefix, "\\", "/")), "/")
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	if prefix == "" || prefix == "." {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}
