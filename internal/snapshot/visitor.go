package snapshot

import (
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
)

// Visitor consumes a stream of snapshot edits.
//
// A stream is bracketed by VisitStart and VisitEnd. Deleted markers name
// objects that no longer exist; VisitObject carries an object in full and
// replaces any previous state of the same (kind, id).
type Visitor interface {
	// VisitStart opens a batch.
	VisitStart() error

	// VisitEnd closes the batch. Consumers that buffer apply the batch here.
	VisitEnd() error

	// VisitDeleted reports that the object (k, id) is gone.
	VisitDeleted(k kind.Kind, id ids.ID) error

	// VisitObject delivers one object. Implementations must not retain o
	// beyond the call unless they copy it.
	VisitObject(o *Object) error
}

// SkipBoundaries wraps a visitor and drops its VisitStart and VisitEnd calls.
// It lets a nested replay share an outer batch.
func SkipBoundaries(next Visitor) Visitor {
	return &skipBoundaries{next: next}
}

type skipBoundaries struct {
	next Visitor
}

func (s *skipBoundaries) VisitStart() error { return nil }
func (s *skipBoundaries) VisitEnd() error   { return nil }

func (s *skipBoundaries) VisitDeleted(k kind.Kind, id ids.ID) error {
	return s.next.VisitDeleted(k, id)
}

func (s *skipBoundaries) VisitObject(o *Object) error {
	return s.next.VisitObject(o)
}

// Recorder is a Visitor that remembers every call as a line of text, such as
// "delete struc 00000000000000AA" or "object enum 00000000000000BB".
type Recorder struct {
	Calls []string
}

func (r *Recorder) VisitStart() error {
	r.Calls = append(r.Calls, "start")
	return nil
}

func (r *Recorder) VisitEnd() error {
	r.Calls = append(r.Calls, "end")
	return nil
}

func (r *Recorder) VisitDeleted(k kind.Kind, id ids.ID) error {
	r.Calls = append(r.Calls, "delete "+k.String()+" "+id.String())
	return nil
}

func (r *Recorder) VisitObject(o *Object) error {
	r.Calls = append(r.Calls, "object "+o.Kind.String()+" "+o.ID.String())
	return nil
}
