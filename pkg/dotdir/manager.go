// Package dotdir resolves the .memstate/ directory that holds config.toml,
// the default file store, and the sqlite-vec index.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the memstate directory.
const DirName = ".memstate"

type Manager struct {
	// homeDir overrides os.UserHomeDir when set.
	homeDir string
}

func NewManager() *Manager {
	return &Manager{}
}

// NewManagerWithHome returns a manager that treats home as the user's home
// directory.
func NewManagerWithHome(home string) *Manager {
	return &Manager{homeDir: home}
}

// Target returns the absolute path to a .memstate/ directory, creating it
// when missing. Order of precedence:
//  1. Provided override
//  2. Local ./.memstate/ dir
//  3. Home ~/.memstate/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, DirName)

	default:
		home, err := m.home()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, DirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating memstate directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Path joins name onto the resolved target directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (m *Manager) home() (string, error) {
	if m.homeDir != "" {
		return m.homeDir, nil
	}
	return os.UserHomeDir()
}

func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, DirName))
	return err == nil && info.IsDir()
}
