// Package snapshot defines the object model of the snapshot store.
//
// Every analysis entity is stored as one Object, named by its content address
// and partitioned by kind. Objects reference each other only by ID: a
// version's ParentID names its owner and its Xrefs name everything it points
// to (blocks and frame of a function, members of a container, operand
// targets of an instruction).
//
// Producers and consumers of objects meet at the Visitor interface:
//
//	VisitStart
//	  VisitDeleted*   (kind, id) markers
//	  VisitObject*    full objects
//	VisitEnd
//
// Memory is both a Visitor (it collects a batch) and a queryable graph (it
// answers "which object has this ID"), which is what the closure builder and
// the saver need.
package snapshot
