package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	goruntime "runtime"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

const (

	// Snapshotter used for container filesystems. fuse-overlayfs provides
	// overlay semantics without requiring root privileges (no mount(2)),
	// allowing cruxbuild to run as a regular user.
	snapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client *containerd.Client // Containerd client for managing containers and images.
}

// Creates a runtime connected to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. The
// runtime must be closed when no longer needed.
func New(address, namespace string) (*Runtime, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fault.Wrap(ErrRuntime, err)
	}
	return &Runtime{client: client}, nil
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Prepares an image and starts a container from it.
//
// The image is either the path of an OCI archive or a registry reference.
// An existing file is always treated as an archive; anything else is
// pulled. The image is unpacked for the host platform, a container is
// created with a fresh snapshot, and a long-running task (sleep infinity)
// is started so that subsequent Exec calls have a running process to attach
// to. Any existing container with the same ID is removed first.
func (rt *Runtime) StartContainer(ctx context.Context, image, id string) (*Container, error) {
	platform := defaultPlatform()

	tag, err := rt.prepareImage(ctx, image, platform)
	if err != nil {
		return nil, fault.Wrap(ErrRuntime, err)
	}

	c := &Container{
		client:   rt.client,
		id:       id,
		platform: platform,
	}

	// Remove any stale container from a previous build with the same ID.
	c.remove(ctx)

	img, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return nil, fault.Wrap(ErrRuntime, err)
	}

	ctr, err := c.create(ctx, img)
	if err != nil {
		return nil, fault.Wrap(ErrRuntime, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fault.Wrap(ErrRuntime, err)
	}

	slog.Debug("container started", "id", id, "image", tag, "platform", platforms.Format(platform))

	return c, nil
}

// Makes an image available in the snapshotter and returns its tag.
func (rt *Runtime) prepareImage(ctx context.Context, image string, platform ocispec.Platform) (string, error) {
	if info, err := os.Stat(image); err == nil && info.Mode().IsRegular() {
		return rt.importImage(ctx, image, platform)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return rt.pullImage(ctx, image, platform)
}

// Imports an OCI archive, tags it under a name derived from its path, and
// unpacks it.
func (rt *Runtime) importImage(ctx context.Context, path string, platform ocispec.Platform) (string, error) {
	tag := imageTag(path)

	source, err := rt.importArchive(ctx, path)
	if err != nil {
		return "", err
	}

	if err := rt.tagImage(ctx, source, tag); err != nil {
		return "", err
	}

	if err := rt.unpackImage(ctx, tag, platform); err != nil {
		return "", err
	}

	slog.Debug("image imported", "path", path, "tag", tag)
	return tag, nil
}

// Pulls an image from its registry and unpacks it.
//
// Short references such as "rust:1" are expanded the way docker does
// ("docker.io/library/rust:1"). An image already present locally is not
// pulled again.
func (rt *Runtime) pullImage(ctx context.Context, ref string, platform ocispec.Platform) (string, error) {
	named, err := reference.ParseDockerRef(ref)
	if err != nil {
		return "", err
	}
	tag := named.String()

	if _, err := rt.client.ImageService().Get(ctx, tag); err == nil {
		if err := rt.unpackImage(ctx, tag, platform); err != nil {
			return "", err
		}
		return tag, nil
	} else if !errdefs.IsNotFound(err) {
		return "", err
	}

	slog.Info("pulling image", "ref", tag, "platform", platforms.Format(platform))

	if _, err := rt.client.Pull(ctx, tag,
		containerd.WithPlatform(platforms.Format(platform)),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
	); err != nil {
		return "", err
	}

	return tag, nil
}

// Imports an OCI archive into the content store.
//
// The archive must contain exactly one image. Multi-platform archives
// are supported (single OCI index with per-platform manifests).
func (rt *Runtime) importArchive(ctx context.Context, path string) (images.Image, error) {
	fh, err := os.Open(path)
	if err != nil {
		return images.Image{}, err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh)
	if err != nil {
		return images.Image{}, err
	}

	// One record per image in the archive's index.json. A multi-platform
	// archive has a single entry whose platform is selected later.
	if len(imported) == 0 {
		return images.Image{}, ErrEmptyArchive
	} else if len(imported) > 1 {
		return images.Image{}, ErrMultipleImages
	}

	return imported[0], nil
}

// Tags an imported image under a deterministic name.
//
// Updates the tag if it already exists. Removes the source record when
// its name differs from the tag to avoid duplicates.
func (rt *Runtime) tagImage(ctx context.Context, source images.Image, tag string) error {
	is := rt.client.ImageService()

	img := images.Image{
		Name:   tag,
		Target: source.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return err
		}
	}

	if source.Name != tag {
		_ = is.Delete(ctx, source.Name)
	}

	return nil
}

// Unpacks the image layers for the target platform into the snapshotter.
func (rt *Runtime) unpackImage(ctx context.Context, tag string, platform ocispec.Platform) error {
	image, err := rt.resolveImage(ctx, tag, platform)
	if err != nil {
		return err
	}

	return image.Unpack(ctx, snapshotter)
}

// Looks up a tagged image and selects the manifest for the given platform.
func (rt *Runtime) resolveImage(ctx context.Context, tag string, platform ocispec.Platform) (containerd.Image, error) {
	img, err := rt.client.ImageService().Get(ctx, tag)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(platform)), nil
}

// Produces a containerd image tag from an archive path.
//
// The path is hashed so the tag is a valid reference whatever characters
// the path contains.
func imageTag(path string) string {
	return fmt.Sprintf("import/%s:latest", digest.SHA256.FromString(path).Encoded())
}

// Returns the OCI platform of the host architecture. Build containers are
// always Linux containers.
func defaultPlatform() ocispec.Platform {
	return platforms.Normalize(ocispec.Platform{
		OS:           "linux",
		Architecture: goruntime.GOARCH,
	})
}
