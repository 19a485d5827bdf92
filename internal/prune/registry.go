package prune

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Prunes a cargo registry directory (usually $CARGO_HOME/registry).
//
// The extracted sources under src are removed, since cargo re-extracts them
// from the cached archives. Git-based indexes lose their .cache directory,
// which cargo rebuilds from the git checkout. Archives under cache/<index>/
// that do not belong to pkgs are removed. Missing subdirectories are
// skipped.
func CleanRegistry(dir string, pkgs []Package) error {
	if err := remove(filepath.Join(dir, "src")); err != nil {
		return err
	}

	indexes, err := readDirs(filepath.Join(dir, "index"))
	if err != nil {
		return err
	}
	for _, index := range indexes {
		if _, err := os.Stat(filepath.Join(index, ".git")); err != nil {
			continue
		}
		if err := remove(filepath.Join(index, ".cache")); err != nil {
			return err
		}
	}

	keep := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		keep[p.CrateFile()] = true
	}

	caches, err := readDirs(filepath.Join(dir, "cache"))
	if err != nil {
		return err
	}
	for _, cache := range caches {
		entries, err := os.ReadDir(cache)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || keep[e.Name()] {
				continue
			}
			if err := remove(filepath.Join(cache, e.Name())); err != nil {
				return err
			}
		}
	}

	return nil
}

// Returns the paths of the subdirectories of dir. A missing dir has none.
func readDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(dir, e.Name()))
		}
	}
	return dirs, nil
}
