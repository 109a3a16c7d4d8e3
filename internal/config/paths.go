package config

import (
	"os"
	"path/filepath"
)

const appName = "apkdock"

// GetAppDir returns the base configuration directory, honoring XDG_CONFIG_HOME
func GetAppDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+appName)
}

// GetStateDir holds the SQLite database
func GetStateDir() string {
	return filepath.Join(GetAppDir(), "state")
}

// GetLogsDir holds debug logs
func GetLogsDir() string {
	return filepath.Join(GetAppDir(), "logs")
}

// GetCacheDir holds downloaded release files waiting to be installed
func GetCacheDir() string {
	return filepath.Join(GetAppDir(), "cache", "releases")
}

// GetDBPath returns the database file path
func GetDBPath() string {
	return filepath.Join(GetStateDir(), appName+".db")
}

// EnsureDirs creates every directory the daemon writes to
func EnsureDirs() error {
	for _, dir := range []string{GetAppDir(), GetStateDir(), GetLogsDir(), GetCacheDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
