// Package syncstate persists the incremental-sync cursor: a single JSON
// file holding the timestamp of the last successful sync.
package syncstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// State is the persisted sync cursor. An empty LastSyncUTC means no sync
// has completed yet.
type State struct {
	LastSyncUTC string `json:"last_sync_utc"`
}

// ParseError indicates the state file exists but could not be read or
// decoded. An absent file is not an error.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syncstate: failed to read %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads the cursor from path. A missing file, a missing or null
// field, a non-string value, or a blank string all yield an absent cursor
// without error; only an unreadable or corrupt file fails.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, &ParseError{Path: path, Err: err}
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return State{}, &ParseError{Path: path, Err: err}
	}

	last, _ := obj["last_sync_utc"].(string)
	return State{LastSyncUTC: strings.TrimSpace(last)}, nil
}

// Save writes the cursor to path, creating parent directories as needed.
// The file is fully overwritten.
func Save(path string, s State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("syncstate: create state dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("syncstate: encode state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("syncstate: write %s: %w", path, err)
	}
	return nil
}
