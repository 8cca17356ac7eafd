package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.prism/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".prism", "logs")
	}
	return filepath.Join(home, ".prism", "logs")
}

// DefaultLogPath returns the default log path for a node's own process.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "node.log")
}

// FindLogFile attempts to find the log file for viewing.
// Priority:
//  1. Explicit path, if provided.
//  2. The default per-node log path.
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	defaultPath := DefaultLogPath()
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath, nil
	}

	return "", fmt.Errorf("no log file found. The node may not have run yet.\nExpected at: %s", defaultPath)
}

// FindClusterLogFiles globs the log directory for every node's log file, for
// viewing every node's log together with Viewer.TailMultiple or
// Viewer.FollowMultiple.
func FindClusterLogFiles(dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultLogDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, "prismd-*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob log directory: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no node log files found under %s", dir)
	}
	return matches, nil
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}
