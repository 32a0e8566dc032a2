package snapshot

import "errors"

// ErrBadPath is returned when a store path does not have the
// <prefix>/<kind>/<HEX>.yaml shape.
var ErrBadPath = errors.New("not a snapshot object path")
