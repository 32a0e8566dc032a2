package snapshot

import (
	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
)

// Xref is a reference from a version to another object.
// Offset is the operand address or member offset the reference is made from.
type Xref struct {
	Offset  int64  `yaml:"offset,omitempty"`
	Operand int    `yaml:"operand,omitempty"`
	ID      ids.ID `yaml:"id"`
}

// Version is one serialized state of an object.
type Version struct {
	ParentID   ids.ID            `yaml:"parent_id,omitempty"`
	Address    uint64            `yaml:"address,omitempty"`
	Size       uint64            `yaml:"size,omitempty"`
	Name       string            `yaml:"name,omitempty"`
	Comment    string            `yaml:"comment,omitempty"`
	Offset     int64             `yaml:"offset,omitempty"`
	Value      uint64            `yaml:"value,omitempty"`
	Xrefs      []Xref            `yaml:"xrefs,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// Object is one file of the snapshot store.
type Object struct {
	ID       ids.ID    `yaml:"id"`
	Kind     kind.Kind `yaml:"kind"`
	Versions []Version `yaml:"versions"`
}

// Parents returns the distinct non-zero parent IDs of all versions.
func (o *Object) Parents() []ids.ID {
	var out []ids.ID
	seen := make(map[ids.ID]bool)
	for _, v := range o.Versions {
		if v.ParentID == ids.Zero || seen[v.ParentID] {
			continue
		}
		seen[v.ParentID] = true
		out = append(out, v.ParentID)
	}
	return out
}

// XrefIDs returns the distinct IDs referenced by all versions, in order of
// first appearance.
func (o *Object) XrefIDs() []ids.ID {
	var out []ids.ID
	seen := make(map[ids.ID]bool)
	for _, v := range o.Versions {
		for _, x := range v.Xrefs {
			if x.ID == ids.Zero || seen[x.ID] {
				continue
			}
			seen[x.ID] = true
			out = append(out, x.ID)
		}
	}
	return out
}

// Current returns the last version, or a zero Version if there is none.
func (o *Object) Current() Version {
	if len(o.Versions) == 0 {
		return Version{}
	}
	return o.Versions[len(o.Versions)-1]
}

// Clone returns a deep copy of o.
func (o *Object) Clone() *Object {
	c := &Object{ID: o.ID, Kind: o.Kind, Versions: make([]Version, len(o.Versions))}
	for i, v := range o.Versions {
		v.Xrefs = append([]Xref(nil), v.Xrefs...)
		if v.Attributes != nil {
			attrs := make(map[string]string, len(v.Attributes))
			for k, a := range v.Attributes {
				attrs[k] = a
			}
			v.Attributes = attrs
		}
		c.Versions[i] = v
	}
	return c
}

// ChangeSet is an external change report: store paths changed since the last
// synchronization, relative to the repository root.
type ChangeSet struct {
	Updated []string `yaml:"updated"`
	Deleted []string `yaml:"deleted"`
}

// Empty reports whether the change set names no paths.
func (c ChangeSet) Empty() bool {
	return len(c.Updated) == 0 && len(c.Deleted) == 0
}
