// Package closure expands a sparse set of changed objects into the set of
// object files that must be reloaded together.
//
// A changed object is useless on its own if the live database cannot resolve
// what it points to, and containers (structures, frames, enumerations) are
// always recreated whole. The Builder walks parents and cross-references over
// a full snapshot graph, guarded by a visited set so mutual references
// terminate.
package closure

import (
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/snapshot"
)

// Mode selects whether an object's cross-references are followed.
type Mode int

const (
	// SkipDependencies follows parents only. Container kinds still follow
	// their cross-references.
	SkipDependencies Mode = iota
	// UseDependencies follows parents and cross-references.
	UseDependencies
)

// Graph is the read side of a full snapshot graph.
type Graph interface {
	// Lookup returns every object with the given ID.
	Lookup(id ids.ID) []*snapshot.Object
	// Walk calls fn for every object until fn returns false.
	Walk(fn func(*snapshot.Object) bool)
}

var _ Graph = (*snapshot.Memory)(nil)

// Builder accumulates the closure of a change set. It is not safe for
// concurrent use.
type Builder struct {
	graph  Graph
	prefix string
	seen   map[ids.ID]bool
	files  []string
}

// New returns a builder over graph producing paths under prefix.
func New(graph Graph, prefix string) *Builder {
	return &Builder{
		graph:  graph,
		prefix: prefix,
		seen:   make(map[ids.ID]bool),
	}
}

// Expand adds id and its dependencies to the closure. IDs missing from the
// graph are ignored, as are IDs already in the closure.
func (b *Builder) Expand(id ids.ID, mode Mode) {
	if id == ids.Zero || b.Contains(id) {
		return
	}
	objs := b.graph.Lookup(id)
	if len(objs) == 0 {
		return
	}
	b.seen[id] = true
	for _, o := range objs {
		b.files = append(b.files, snapshot.Path(b.prefix, o.Kind, o.ID))
	}

	for _, o := range objs {
		for _, p := range o.Parents() {
			b.Expand(p, SkipDependencies)
		}
		if mode != UseDependencies && !o.Kind.IsContainer() {
			continue
		}
		for _, x := range o.XrefIDs() {
			b.Expand(x, SkipDependencies)
		}
	}
}

// AddMissingParents expands, with their dependencies, every container that
// references a deleted ID. A container losing a member is rewritten whole,
// so it must be reloaded even if no file of its own changed.
func (b *Builder) AddMissingParents(deleted map[ids.ID]bool) {
	if len(deleted) == 0 {
		return
	}
	b.graph.Walk(func(o *snapshot.Object) bool {
		if !o.Kind.IsContainer() || b.Contains(o.ID) {
			return true
		}
		for _, x := range o.XrefIDs() {
			if deleted[x] {
				b.Expand(o.ID, UseDependencies)
				break
			}
		}
		return true
	})
}

// Contains reports whether id is already part of the closure.
func (b *Builder) Contains(id ids.ID) bool { return b.seen[id] }

// Files returns the closure's object paths in the order they were added.
// An object is added before its parents and references, so the order is
// not a replay order: the store loads files sorted by path and the listener
// applies a batch in dependency order at VisitEnd.
func (b *Builder) Files() []string {
	return append([]string(nil), b.files...)
}
