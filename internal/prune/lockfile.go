package prune

import (
	"os"
	"strings"

	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/pelletier/go-toml/v2"
)

// Name of the lockfile cargo writes at the workspace root.
const LockfileName = "Cargo.lock"

// A package pinned by the lockfile.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Source  string `toml:"source"` // Empty for workspace members and path dependencies.

	// Library target names, when they are known from cargo metadata. A
	// library may be named differently from its package (md-5 builds md5).
	Libs []string `toml:"-"`
}

// Whether the package lives in the workspace rather than being downloaded.
func (p Package) Local() bool {
	return p.Source == ""
}

// Whether the package is downloaded as a .crate archive from a registry.
func (p Package) FromRegistry() bool {
	return strings.HasPrefix(p.Source, "registry+") || strings.HasPrefix(p.Source, "sparse+")
}

// Archive file name cargo stores the package under in the registry cache.
func (p Package) CrateFile() string {
	return p.Name + "-" + p.Version + ".crate"
}

// Parsed Cargo.lock.
type Lockfile struct {
	Version  int       `toml:"version"`
	Packages []Package `toml:"package"`
}

// Reads and parses a Cargo.lock file.
func ReadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(ErrLockfile, err)
	}
	return ParseLockfile(data)
}

// Parses the content of a Cargo.lock file.
func ParseLockfile(data []byte) (*Lockfile, error) {
	var lock Lockfile
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fault.Wrap(ErrLockfile, err)
	}
	return &lock, nil
}

// Returns the packages that are not workspace members.
func (l *Lockfile) Dependencies() []Package {
	var deps []Package
	for _, p := range l.Packages {
		if !p.Local() {
			deps = append(deps, p)
		}
	}
	return deps
}
