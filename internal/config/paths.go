package config

import (
	"os"
	"path/filepath"
)

// DefaultControlDir returns ~/.vibetunnel/control.
func DefaultControlDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".vibetunnel", "control"), nil
}

// DefaultLogFile returns ~/.vibetunnel/log.txt.
func DefaultLogFile() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".vibetunnel", "log.txt"), nil
}

// SessionDir returns the control-directory subdirectory for a session id.
func SessionDir(controlDir, id string) string {
	return filepath.Join(controlDir, id)
}

// EnsureDir creates dir and any missing parents with 0755 permissions.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
