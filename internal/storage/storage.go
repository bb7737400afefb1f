// ABOUTME: Data directory layout for ragchat
// ABOUTME: Resolves XDG-compliant paths for the session database and the persisted index
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the data directory under XDG_DATA_HOME
const AppName = "ragchat"

// Layout describes where ragchat keeps its files
type Layout struct {
	DataDir  string
	IndexDir string
}

// DefaultDataDir returns $XDG_DATA_HOME/ragchat.
// XDG_DATA_HOME is read at call time so tests can override it.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return filepath.Join(dataHome, AppName)
}

// NewLayout creates the data directory. Empty arguments fall back to defaults.
func NewLayout(dataDir, indexDir string) (*Layout, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if indexDir == "" {
		indexDir = filepath.Join(dataDir, "index")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	return &Layout{DataDir: dataDir, IndexDir: indexDir}, nil
}

// DBPath is the SQLite database holding sessions, cache entries and build history
func (l *Layout) DBPath() string {
	return filepath.Join(l.DataDir, AppName+".db")
}

// HasIndex reports whether a complete index directory exists
func (l *Layout) HasIndex() bool {
	_, err := os.Stat(filepath.Join(l.IndexDir, ManifestFile))
	return err == nil
}
