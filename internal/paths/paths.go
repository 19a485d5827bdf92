package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	toolName = "cruxbuild"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Default cache namespace when none is configured.
	DefaultNamespace = "default"
)

// Root of the persistent directory cache on the host.
//
//	Linux:   $XDG_CACHE_HOME/cruxbuild or ~/.cache/cruxbuild
//	macOS:   ~/Library/Caches/cruxbuild
func CacheRoot() string {
	return filepath.Join(xdg.CacheHome, toolName)
}

// Directory holding the global configuration file.
//
//	Linux:   $XDG_CONFIG_HOME/cruxbuild or ~/.config/cruxbuild
//	macOS:   ~/Library/Application Support/cruxbuild
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, toolName)
}

// Directory for persistent state such as metrics textfiles and logs.
//
//	Linux:   $XDG_STATE_HOME/cruxbuild or ~/.local/state/cruxbuild
//	macOS:   ~/Library/Application Support/cruxbuild
func StateDir() string {
	return filepath.Join(xdg.StateHome, toolName)
}

// Default path of the rotated log file.
func LogFile() string {
	return filepath.Join(StateDir(), toolName+".log")
}
