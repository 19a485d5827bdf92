package toolcli

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cruciblehq/cruxbuild/internal/prune"
)

// Command printing the metadata of a workspace and all of its dependencies.
// The dependencies are already fetched when pruning runs, so it works
// offline.
var cargoMetadata = []string{"cargo", "metadata", "--format-version=1", "--offline"}

// Represents the 'rfi clean-target' command.
type CleanTargetCmd struct {
	TargetDir string   `required:"" help:"Cargo target directory." type:"path" placeholder:"DIR"`
	Lockfile  string   `help:"Lockfile listing the packages to keep." type:"path" default:"Cargo.lock" placeholder:"FILE"`
	Keep      []string `help:"Target triple to keep. Repeatable. Without it every triple is kept." placeholder:"TRIPLE"`
	Metadata  string   `help:"Output of 'cargo metadata --format-version=1'. Without it cargo is run next to the lockfile." type:"path" placeholder:"FILE"`
}

// Executes the clean-target command.
//
// Library names come from cargo metadata, since a crate may build a library
// named differently from the package. When metadata is unavailable only the
// package names are kept.
func (c *CleanTargetCmd) Run(ctx context.Context) error {
	pkgs, err := dependencies(c.Lockfile)
	if err != nil {
		return err
	}

	meta, err := c.metadata(ctx)
	if err != nil {
		slog.Warn("cargo metadata unavailable, keeping artifacts by package name only", "error", err)
	} else {
		pkgs = prune.WithLibraries(pkgs, meta)
	}

	if err := prune.CleanTargetDir(c.TargetDir, pkgs, c.Keep); err != nil {
		return err
	}

	slog.Info("pruned target directory", "dir", c.TargetDir, "packages", len(pkgs), "keep", c.Keep)
	return nil
}

// Returns the metadata file given on the command line, or runs cargo in the
// lockfile's directory.
func (c *CleanTargetCmd) metadata(ctx context.Context) (*prune.Metadata, error) {
	if c.Metadata != "" {
		return prune.ReadMetadata(c.Metadata)
	}

	cmd := exec.CommandContext(ctx, cargoMetadata[0], cargoMetadata[1:]...)
	cmd.Dir = filepath.Dir(c.Lockfile)
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return prune.ParseMetadata(out)
}

// Represents the 'rfi clean-registry' command.
type CleanRegistryCmd struct {
	RegistryDir string `help:"Cargo registry directory. Defaults to $CARGO_HOME/registry." type:"path" placeholder:"DIR"`
	Lockfile    string `help:"Lockfile listing the packages to keep." type:"path" default:"Cargo.lock" placeholder:"FILE"`
}

// Executes the clean-registry command.
func (c *CleanRegistryCmd) Run(ctx context.Context) error {
	dir := c.RegistryDir
	if dir == "" {
		dir = defaultRegistryDir()
	}

	pkgs, err := dependencies(c.Lockfile)
	if err != nil {
		return err
	}

	if err := prune.CleanRegistry(dir, pkgs); err != nil {
		return err
	}

	slog.Info("pruned registry", "dir", dir, "packages", len(pkgs))
	return nil
}

// Returns the non-local packages of the lockfile at path.
func dependencies(path string) ([]prune.Package, error) {
	lock, err := prune.ReadLockfile(path)
	if err != nil {
		return nil, err
	}
	return lock.Dependencies(), nil
}

// Returns $CARGO_HOME/registry, falling back to ~/.cargo/registry.
func defaultRegistryDir() string {
	if home := os.Getenv("CARGO_HOME"); home != "" {
		return filepath.Join(home, "registry")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/root", ".cargo", "registry")
	}
	return filepath.Join(home, ".cargo", "registry")
}
