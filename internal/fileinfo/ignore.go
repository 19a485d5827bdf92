package fileinfo

import (
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Returns an ignore function built from the .gitignore files under root.
//
// The ".git" directory is always ignored. Patterns are read the same way git
// reads them: each .gitignore applies to its own directory and below.
func GitIgnore(root string) (func(rel string, isDir bool) bool, error) {
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil {
		return nil, err
	}
	matcher := gitignore.NewMatcher(patterns)

	return func(rel string, isDir bool) bool {
		parts := strings.Split(rel, "/")
		if parts[0] == ".git" {
			return true
		}
		return matcher.Match(parts, isDir)
	}, nil
}
