// Package prune bounds the growth of cargo cache directories.
//
// Two kinds of directory are handled. A target directory holds compiler
// output; [CleanTargetDir] keeps only what a later build can reuse: the
// build scripts, fingerprints and compiled dependencies of third-party
// packages, for the target triples that are still being built. A registry
// directory holds downloaded packages; [CleanRegistry] drops the extracted
// sources (cargo re-extracts them from the archives) and every archive that
// the lockfile no longer references.
//
// Pruning is manifest-driven. The set of packages worth keeping is read from
// Cargo.lock with [ReadLockfile]; workspace members are not part of it, since
// their artifacts are invalidated by every source upload anyway.
package prune
