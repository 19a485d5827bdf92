package prune

import (
	"encoding/json"
	"os"
	"slices"

	"github.com/cruciblehq/cruxbuild/internal/fault"
)

// Target kinds that produce a library crate in the deps directory.
var libraryKinds = []string{"lib", "rlib", "dylib", "cdylib", "staticlib", "proc-macro"}

// Output of 'cargo metadata --format-version=1', reduced to what pruning
// needs.
type Metadata struct {
	Packages []MetadataPackage `json:"packages"`
}

// A package as reported by cargo metadata.
type MetadataPackage struct {
	Name    string           `json:"name"`
	Version string           `json:"version"`
	Targets []MetadataTarget `json:"targets"`
}

// A build target of a package.
type MetadataTarget struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

// Reads and parses a cargo metadata document.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(ErrMetadata, err)
	}
	return ParseMetadata(data)
}

// Parses the output of 'cargo metadata --format-version=1'.
func ParseMetadata(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fault.Wrap(ErrMetadata, err)
	}
	return &meta, nil
}

// Returns the library target names of the package with the given name and
// version, or nil if cargo did not report it.
func (m *Metadata) Libraries(name, version string) []string {
	for _, p := range m.Packages {
		if p.Name != name || p.Version != version {
			continue
		}
		var libs []string
		for _, t := range p.Targets {
			if slices.ContainsFunc(t.Kind, isLibraryKind) && !slices.Contains(libs, t.Name) {
				libs = append(libs, t.Name)
			}
		}
		return libs
	}
	return nil
}

// Returns a copy of pkgs with the library target names from meta attached.
func WithLibraries(pkgs []Package, meta *Metadata) []Package {
	out := make([]Package, len(pkgs))
	for i, p := range pkgs {
		p.Libs = meta.Libraries(p.Name, p.Version)
		out[i] = p
	}
	return out
}

func isLibraryKind(kind string) bool {
	return slices.Contains(libraryKinds, kind)
}
