package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// Validate checks that an object can be stored.
func Validate(o *snapshot.Object) error {
	if o.ID == ids.Zero {
		return fmt.Errorf("%w: id is required", ErrInvalidObject)
	}
	if o.Kind == kind.Unknown {
		return fmt.Errorf("%w: kind is required", ErrInvalidObject)
	}
	if len(o.Versions) == 0 {
		return fmt.Errorf("%w: object %s has no version", ErrInvalidObject, o.ID)
	}
	return nil
}

// decodeObject parses and validates one object file. The kind and ID in the
// file must match the ones encoded in its path.
func decodeObject(path string, data []byte) (*snapshot.Object, error) {
	var o snapshot.Object
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse object file %s: %w", path, err)
	}
	if err := Validate(&o); err != nil {
		return nil, fmt.Errorf("invalid object file %s: %w", path, err)
	}
	k, id, err := snapshot.ParsePath(filepath.ToSlash(path))
	if err != nil {
		return nil, err
	}
	if k != o.Kind || id != o.ID {
		return nil, fmt.Errorf("%w: %s holds %s %s", ErrInvalidObject, path, o.Kind, o.ID)
	}
	return &o, nil
}

// EncodeObject renders an object the way it is stored.
func EncodeObject(o *snapshot.Object) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(o); err != nil {
		return nil, fmt.Errorf("failed to marshal object %s: %w", o.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal object %s: %w", o.ID, err)
	}
	return buf.Bytes(), nil
}

// WriteObjectFile writes o to path atomically.
func WriteObjectFile(path string, o *snapshot.Object) error {
	if err := Validate(o); err != nil {
		return fmt.Errorf("cannot write invalid object: %w", err)
	}
	data, err := EncodeObject(o)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object file %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename object file %s: %w", path, err)
	}
	return nil
}
