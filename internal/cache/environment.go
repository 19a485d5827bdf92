package cache

import "context"

// A running build environment, as seen by the cache.
//
// Paths are absolute paths inside the environment. The working directory is
// mutable state of the environment and applies to subsequent Exec calls.
type Environment interface {

	// Returns the current working directory.
	Workdir() string

	// Sets the working directory for subsequent commands.
	SetWorkdir(dir string)

	// Replaces the contents of path with a copy of src.
	MountDirectory(ctx context.Context, path string, src Directory) error

	// Runs a command in the working directory. A non-zero exit status is
	// an error.
	Exec(ctx context.Context, args ...string) error

	// Copies the contents of path into dest on the host, preserving
	// modification times and permission bits.
	ExportDirectory(ctx context.Context, path string, dest Directory) error
}

// Metadata and pruning operations run against a directory inside an
// environment.
type Tool interface {

	// Reapplies the timestamps recorded in dir by a previous snapshot. A
	// directory without a snapshot is left untouched.
	RestoreMetadata(ctx context.Context, env Environment, dir string) error

	// Records the timestamps of dir in a sidecar file inside it.
	SnapshotMetadata(ctx context.Context, env Environment, dir string) error

	// Removes compiler output that a later build cannot reuse, including
	// whole target triples not listed in keepTargets. A nil keepTargets
	// keeps every triple.
	PruneBuildOutput(ctx context.Context, env Environment, dir string, keepTargets []string) error

	// Removes downloaded packages no longer referenced by the lockfile.
	PruneDependencies(ctx context.Context, env Environment, dir string) error
}
