// Package store persists snapshot objects as one YAML file per object.
//
// # Layout
//
// Objects live below a cache directory inside the repository, partitioned by
// kind and named by the hex form of their ID:
//
//	cache/
//	  function/0123456789ABCDEF.yaml
//	  basic_block/...
//	  struc/...
//	  strucmember/...
//	  enum/...
//
// Paths handed in and out of the store are slash-separated and relative to
// the repository root, the same form the version-control layer reports.
//
// # Example object
//
//	id: 3A0C5D1E88B2F104
//	kind: struc
//	versions:
//	  - name: Foo
//	    xrefs:
//	      - id: 91D7A3C0E6F21B55
//
// # Loading
//
// LoadAll parses every object file in parallel and replays them in path
// order; LoadFiles does the same for an explicit list and skips files that no
// longer exist. Parsed objects are kept in an LRU cache keyed by path and
// invalidated by size and modification time, so repeated full loads during a
// daemon session only re-read files that changed.
//
// # Writing
//
// Writer returns a snapshot.Visitor that writes each visited object
// atomically (temp file + rename) and removes the file of each deleted
// marker.
package store
