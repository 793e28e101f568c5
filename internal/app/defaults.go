package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - QNOTE_CONFIG_PATH: config file location (default: ~/.config/qnote.toml)
//   - QNOTE_HOME: base directory for qnote data (default: ~/.local/share/qnote)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns QNOTE_CONFIG_PATH, or ~/.config/qnote.toml when it is unset.
func getConfigPath() (string, error) {
	if path := os.Getenv("QNOTE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "qnote.toml"), nil
}

// getBaseDir returns QNOTE_HOME, or the XDG data default ~/.local/share/qnote.
func getBaseDir() (string, error) {
	if path := os.Getenv("QNOTE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "qnote"), nil
}
