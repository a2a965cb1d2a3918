// Package config handles global configuration and environment overrides.
package config

import (
	"os"
	"path/filepath"
)

const (
	// AppDir is the directory name used under XDG config and cache homes.
	AppDir = "bipcite"
	// LibraryCacheFile is the SQLite cache of the personal library.
	LibraryCacheFile = "library.db"
)

// CacheDir returns $XDG_CACHE_HOME/bipcite, defaulting to ~/.cache/bipcite.
func CacheDir() string {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, AppDir)
}

// LibraryCachePath returns the configured library cache path, or the
// default under CacheDir.
func LibraryCachePath(cfg *GlobalConfig) string {
	if cfg != nil && cfg.LibraryPath != "" {
		return ExpandPath(cfg.LibraryPath)
	}
	dir := CacheDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, LibraryCacheFile)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
