// Package runtime manages build containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon and starts containers from
// either an OCI archive on disk or an image reference in a registry. Images
// are unpacked for the host platform into the fuse-overlayfs snapshotter.
//
// Each [Container] wraps a running containerd task with a long-lived
// "sleep infinity" process. Commands are executed as additional processes
// of that task, and directories move in and out as tar streams produced and
// consumed by the container's own tar binary.
//
// An [Environment] layers the mutable state of a build on top of a
// container: the working directory and environment variables applied to
// every command, plus directory mount and export in terms of host paths. It
// is the build environment consumed by the cache package.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "cruxbuild")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, "docker.io/library/rust:1", "build-1")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	env := runtime.NewEnvironment(ctr, "/app")
//	if err := env.Exec(ctx, "cargo", "build", "--release"); err != nil {
//	    return err
//	}
package runtime
