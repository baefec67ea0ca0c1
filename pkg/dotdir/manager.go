// Package dotdir resolves the .splice/ directory holding config.toml.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the splice directory.
	dirName = ".splice"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .splice/ directory.
// Order of precedence is as follows:
//  1. Provided override, created if missing
//  2. Local ./.splice/ dir
//  3. Home ~/.splice/ dir
//
// When none applies Target returns an empty string and no error.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating splice directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if local := filepath.Join(cwd, dirName); isDir(local) {
		return local, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory is not fatal; defaults still apply.
		return "", nil
	}
	if global := filepath.Join(home, dirName); isDir(global) {
		return global, nil
	}

	return "", nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
