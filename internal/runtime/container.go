package runtime

import (
	"context"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// The environment of one build.
//
// A container lives for a single cruxbuild invocation. Source upload, cache
// restore, compilation and cache dump all run in it, and [Container.Destroy]
// throws it away with its snapshot once the build ends. Nothing written
// inside survives except what the cache dumps and the exported artifacts.
type Container struct {
	client   *containerd.Client
	id       string           // Build-scoped ID, unique per invocation.
	platform ocispec.Platform // Platform the image was unpacked for.
}

// Returns the containerd ID of the container.
func (c *Container) ID() string {
	return c.id
}

// Ends the build environment.
//
// Runs deferred after the build, on success and failure alike, so it takes
// a context that outlives the build's cancellation and only logs problems.
// The handle must not be used afterwards.
func (c *Container) Destroy(ctx context.Context) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			slog.Warn("failed to load build container", "id", c.id, "error", err)
		}
		return
	}

	if err := teardown(ctx, ctr); err != nil {
		slog.Warn("failed to delete build container", "id", c.id, "error", err)
		return
	}

	slog.Debug("container destroyed", "id", c.id)
}

// Creates the build container from image.
//
// Cargo fetches crates during the build, so the container uses the host
// network and resolver. Its process only keeps the task alive; build
// commands are exec'd next to it.
func (c *Container) create(ctx context.Context, image containerd.Image) (containerd.Container, error) {
	return c.client.NewContainer(ctx, c.id,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(c.id, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(
			oci.WithDefaultSpecForPlatform(platforms.Format(c.platform)),
			oci.WithImageConfig(image),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithProcessArgs("sleep", "infinity"),
		),
	)
}

func (c *Container) startTask(ctx context.Context, ctr containerd.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Clears a leftover container with the same ID, as an interrupted build
// can leave behind.
func (c *Container) remove(ctx context.Context) {
	existing, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return
	}
	if err := teardown(ctx, existing); err != nil {
		slog.Debug("failed to clear leftover container", "id", c.id, "error", err)
	}
}

// Kills the task of ctr, if any, and deletes ctr with its snapshot.
func teardown(ctx context.Context, ctr containerd.Container) error {
	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, containerd.WithProcessKill)
	}

	if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	return nil
}
