package prune

import (
	"os"
	"slices"

	"github.com/cruciblehq/cruxbuild/internal/fault"
)

// Removes a file or directory tree. Removing a missing path succeeds.
func remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fault.Wrap(ErrRemove, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	return slices.Contains(list, s)
}
