package config

import (
	"os"
	"path/filepath"
)

// Extensions tried, in order, for every configuration file name.
var extensions = []string{"yml", "yaml", "json", "toml"}

// Returns the first existing "<base>.<ext>" file in dir, or "".
func findFile(dir, base string) string {
	for _, ext := range extensions {
		path := filepath.Join(dir, base+"."+ext)

		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// Finds the global configuration file in dir.
func FindGlobalConfig(dir string) string {
	if dir == "" {
		return ""
	}
	return findFile(dir, "config")
}

// Finds the project-local configuration file by walking up from dir.
//
// Returns the path of the nearest ".cruxbuild.<ext>" file, or "" when none
// exists between dir and the filesystem root.
func FindLocalConfig(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	dir = abs

	for {
		if path := findFile(dir, ".cruxbuild"); path != "" {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
