package prune

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	cachedirTag = "CACHEDIR.TAG"
	rustcInfo   = ".rustc_info.json"
)

// Subdirectories of a profile directory that a later build can reuse.
var profileKeep = []string{"build", ".fingerprint", "deps"}

// Prunes a cargo target directory.
//
// Stray files at the top level are removed. Nested target directories,
// recognised by a CACHEDIR.TAG or .rustc_info.json inside them, are pruned
// recursively. Profile directories, recognised by a build, .fingerprint or
// deps directory inside them, are reduced to the reusable artifacts of pkgs
// whatever their name. Any other directory holds the profiles of one target
// triple: it is removed entirely when keepTargets is not empty and does not
// name it, and otherwise its profiles are pruned. A missing directory is not
// an error.
func CleanTargetDir(dir string, pkgs []Package, keepTargets []string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		if !e.IsDir() {
			if e.Name() != cachedirTag && e.Name() != rustcInfo {
				if err := remove(path); err != nil {
					return err
				}
			}
			continue
		}

		switch {
		case isNestedTarget(path):
			err = CleanTargetDir(path, pkgs, keepTargets)
		case isProfile(path):
			err = cleanProfileDir(path, pkgs)
		case len(keepTargets) > 0 && !contains(keepTargets, e.Name()):
			err = remove(path)
		default:
			err = cleanTripleDir(path, pkgs)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// Prunes every profile directory below a target triple directory.
func cleanTripleDir(dir string, pkgs []Package) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			err = cleanProfileDir(path, pkgs)
		} else {
			err = remove(path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Reduces a profile directory to the reusable artifacts of pkgs.
//
// Final binaries and incremental state are dropped. Inside build and
// .fingerprint, entries are named after the package; inside deps, after the
// library crate, with dashes turned into underscores and an optional "lib"
// prefix. The library crate defaults to the package name; the names in
// Package.Libs are kept as well.
func cleanProfileDir(dir string, pkgs []Package) error {
	if err := removeExcept(dir, profileKeep, false); err != nil {
		return err
	}

	names := make([]string, 0, len(pkgs))
	crates := make([]string, 0, 2*len(pkgs))
	for _, p := range pkgs {
		names = append(names, p.Name)
		for _, lib := range append([]string{p.Name}, p.Libs...) {
			crate := strings.ReplaceAll(lib, "-", "_")
			crates = append(crates, crate, "lib"+crate)
		}
	}

	if err := removeExcept(filepath.Join(dir, "build"), names, true); err != nil {
		return err
	}
	if err := removeExcept(filepath.Join(dir, ".fingerprint"), names, true); err != nil {
		return err
	}
	return removeExcept(filepath.Join(dir, "deps"), crates, true)
}

// Removes every entry of dir whose name is not in keep.
//
// With stripHash, the name is compared up to its last dash, which drops the
// metadata hash cargo appends ("serde-1a2b3c" and "libserde-1a2b3c.rlib"
// become "serde" and "libserde"). A missing directory is skipped.
func removeExcept(dir string, keep []string, stripHash bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if stripHash {
			if i := strings.LastIndex(name, "-"); i >= 0 {
				name = name[:i]
			}
		}
		if contains(keep, name) {
			continue
		}
		if err := remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Whether dir is itself a cargo target directory.
func isNestedTarget(dir string) bool {
	for _, marker := range []string{cachedirTag, rustcInfo} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// Whether dir is a profile directory such as release, debug or a custom
// profile, as opposed to a target triple directory holding profiles.
func isProfile(dir string) bool {
	for _, name := range profileKeep {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}
