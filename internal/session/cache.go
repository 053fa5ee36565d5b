package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const cacheFile = "session.json"

// Selection is what the last successful connect chose. It is reused as the
// preferred wallet on the next connect and shown by `status`.
type Selection struct {
	Wallet      string    `json:"wallet"`
	Network     string    `json:"network"`
	Account     string    `json:"account"`
	ChainID     int64     `json:"chain_id"`
	RPC         string    `json:"rpc"`
	ConnectedAt time.Time `json:"connected_at"`
}

// SelectionCache persists the last Selection in the config dir with 0600
// permissions.
type SelectionCache struct {
	path string
}

// NewSelectionCache stores its file in dir.
func NewSelectionCache(dir string) *SelectionCache {
	return &SelectionCache{path: filepath.Join(dir, cacheFile)}
}

// Path is the cache file location.
func (c *SelectionCache) Path() string { return c.path }

// Load returns the cached selection. ok is false when there is none or the
// file is unreadable.
func (c *SelectionCache) Load() (sel Selection, ok bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return Selection{}, false
	}
	if err := json.Unmarshal(data, &sel); err != nil || sel.Wallet == "" {
		return Selection{}, false
	}
	return sel, true
}

// Save replaces the cached selection.
func (c *SelectionCache) Save(sel Selection) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sel, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return err
	}
	_ = os.Chmod(c.path, 0o600)
	return nil
}

// Clear removes the cache file. A missing file is not an error.
func (c *SelectionCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
