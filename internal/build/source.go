package build

import (
	"path/filepath"

	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/fileinfo"
	"github.com/cruciblehq/cruxbuild/internal/runtime"
)

// Returns the filter applied when uploading the project source.
//
// Git-ignored paths are left on the host, as is the host output directory
// when it lies inside the project.
func sourceFilter(root, output string) (runtime.Filter, error) {
	ignored, err := fileinfo.GitIgnore(root)
	if err != nil {
		return nil, fault.Wrap(ErrCopy, err)
	}

	outRel := ""
	if rel, err := filepath.Rel(root, output); err == nil && filepath.IsLocal(rel) {
		outRel = filepath.ToSlash(rel)
	}

	return func(rel string, isDir bool) bool {
		if outRel != "" && rel == outRel {
			return true
		}
		return ignored(rel, isDir)
	}, nil
}
