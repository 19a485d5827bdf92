// Package build produces release binaries of a cargo project inside a
// containerd container.
//
// A build starts a container from the configured image, uploads the project
// source (leaving git-ignored files behind), restores the directory cache,
// runs "cargo zigbuild --release" for the selected target and exports the
// resulting binary and a version file to "<output>/<target>/". The cache is
// written back after the artifacts are exported; a failed cache write is
// reported without failing the build.
//
// Targets are named after the platform they run on:
//
//	x64_linux    x86_64-unknown-linux-musl
//	arm64_linux  aarch64-unknown-linux-musl
//
// Example usage:
//
//	target, err := build.ParseTarget("arm64_linux")
//	if err != nil {
//	    return err
//	}
//	result, err := build.Run(ctx, rt, build.Options{
//	    Config: cfg,
//	    Root:   ".",
//	    Target: target,
//	})
package build
