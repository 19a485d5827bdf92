package build

import (
	"encoding/json"
	"slices"

	"github.com/cruciblehq/cruxbuild/internal/fault"
)

// Arguments of the command that prints workspace metadata.
var metadataCommand = []string{"cargo", "metadata", "--format-version=1", "--no-deps"}

// Subset of the "cargo metadata" document used by the build.
type Metadata struct {
	Packages []Package `json:"packages"`
}

// A workspace package.
type Package struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Targets []PackageTarget `json:"targets"`
}

// A compilation unit of a package.
type PackageTarget struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

// Parses the JSON printed by [metadataCommand].
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fault.Wrap(ErrMetadata, err)
	}
	if len(m.Packages) == 0 {
		return nil, fault.Wrapf(ErrMetadata, "workspace has no packages")
	}
	return &m, nil
}

// Returns the version of the first package, prefixed with "v".
func (m *Metadata) Version() string {
	return "v" + m.Packages[0].Version
}

// Returns the binary produced by the first package.
//
// The first target of kind "bin" is used. A package without one falls back
// to the package name, which is what cargo names the default binary.
func (m *Metadata) Binary() string {
	pkg := m.Packages[0]
	for _, t := range pkg.Targets {
		if slices.Contains(t.Kind, "bin") {
			return t.Name
		}
	}
	return pkg.Name
}
