package util

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppConfigDir = ".config/suddenly"
)

// GetConfigDir returns the suddenly config directory path (~/.config/suddenly/)
// and creates it if it doesn't exist
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, AppConfigDir)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// ResolveFilePath resolves a file path with the following priority:
// 1. Local working directory (e.g., ./config.yaml)
// 2. User config directory (e.g., ~/.config/suddenly/config.yaml)
// 3. Returns the user config directory path if neither exists (for creation)
func ResolveFilePath(filename string) string {
	if _, err := os.Stat(filename); err == nil {
		return filename
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return filename
	}

	userPath := filepath.Join(configDir, filename)

	if _, err := os.Stat(userPath); err == nil {
		return userPath
	}

	// Neither exists, return user config path (for creation)
	return userPath
}

// ResolveDirPath resolves a directory the same way as ResolveFilePath and
// creates it under the user config directory when it exists nowhere yet.
// Used for the instance key directory.
func ResolveDirPath(dirname string) string {
	if info, err := os.Stat(dirname); err == nil && info.IsDir() {
		return dirname
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return dirname
	}

	userPath := filepath.Join(configDir, dirname)
	os.MkdirAll(userPath, 0755)
	return userPath
}
