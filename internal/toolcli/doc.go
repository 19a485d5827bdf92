// Parses flags and runs the rfi commands.
//
// rfi runs inside a build environment. It records and restores file
// metadata of cached directories and prunes cargo caches down to what the
// current lockfile needs:
//
//	rfi [restore] [--dir DIR]
//	rfi dump [--dir DIR] [--gitignore]
//	rfi clean-target --target-dir DIR [--lockfile FILE] [--keep TRIPLE]...
//	rfi clean-registry [--registry-dir DIR] [--lockfile FILE]
//
// Directories default to the working directory, which is how cruxbuild
// scopes the metadata commands to a cache entry.
package toolcli
