package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StateFile is the name of the sync state file inside the state directory.
const StateFile = "sync.yaml"

// SyncState is the persisted synchronization bookmark.
type SyncState struct {
	// Head is the revision the cache directory was last synchronized at.
	// Empty means never synchronized.
	Head     string    `yaml:"head,omitempty"`
	SyncedAt time.Time `yaml:"synced_at,omitempty"`
	Backend  string    `yaml:"backend,omitempty"`
}

// readState loads path. A missing file yields the zero state.
func readState(path string) (SyncState, error) {
	var st SyncState
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read sync state: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to parse sync state %s: %w", path, err)
	}
	return st, nil
}

// writeState replaces path atomically.
func writeState(path string, st SyncState) error {
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to encode sync state: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sync-*")
	if err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}
