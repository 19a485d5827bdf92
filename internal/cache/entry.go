package cache

import (
	"path"

	"github.com/cruciblehq/cruxbuild/internal/fault"
)

// Declarative description of one cached directory.
//
// The flags are independent. An entry may be both a dependency cache and a
// build output cache, or neither, in which case it is persisted as is.
type Entry struct {
	Path             string `mapstructure:"path" yaml:"path" validate:"required,startswith=/"` // Absolute in-environment path.
	Dependencies     bool   `mapstructure:"dependencies" yaml:"dependencies"`                  // Downloaded packages; pruned to the lockfile.
	BuildOutput      bool   `mapstructure:"build_output" yaml:"build_output"`                  // Compiler output; pruned to retained targets.
	PreserveMetadata bool   `mapstructure:"preserve_metadata" yaml:"preserve_metadata"`        // Timestamps are snapshotted and restored.
}

// Returns the slot key of the entry.
func (e Entry) Key() (string, error) {
	return Key(e.Path)
}

// Checks that every entry has a usable path and that no two entries share a
// slot. Returns the keys in entry order.
func validateEntries(entries []Entry) ([]string, error) {
	keys := make([]string, len(entries))
	seen := make(map[string]string, len(entries))

	for i, e := range entries {
		key, err := e.Key()
		if err != nil {
			return nil, err
		}

		clean := path.Clean(e.Path)
		if prev, ok := seen[clean]; ok {
			return nil, fault.Wrapf(ErrConfig, "cache paths %q and %q refer to the same directory", prev, e.Path)
		}
		seen[clean] = e.Path
		keys[i] = key
	}

	return keys, nil
}
