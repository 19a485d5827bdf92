package cache

import (
	"context"
	"path"

	"github.com/cruciblehq/cruxbuild/internal"
	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/prune"
)

// [Tool] that runs the rfi binary inside the environment.
//
// Metadata commands are scoped by working directory, so they change the
// environment's working directory to the entry path. Pruning commands take
// explicit paths.
type CommandTool struct {
	Binary    string // Command name or path inside the environment. Defaults to "rfi".
	Lockfile  string // Lockfile path inside the environment. Defaults to Cargo.lock in the working directory.
	GitIgnore bool   // Skip git-ignored files when snapshotting.
}

// Runs "rfi restore" in dir.
func (t *CommandTool) RestoreMetadata(ctx context.Context, env Environment, dir string) error {
	env.SetWorkdir(dir)
	return t.run(ctx, env, "restore")
}

// Runs "rfi dump" in dir.
func (t *CommandTool) SnapshotMetadata(ctx context.Context, env Environment, dir string) error {
	env.SetWorkdir(dir)
	if t.GitIgnore {
		return t.run(ctx, env, "dump", "--gitignore")
	}
	return t.run(ctx, env, "dump")
}

// Runs "rfi clean-target" on dir.
func (t *CommandTool) PruneBuildOutput(ctx context.Context, env Environment, dir string, keepTargets []string) error {
	args := []string{"clean-target", "--target-dir", dir, "--lockfile", t.lockfile(env)}
	for _, target := range keepTargets {
		args = append(args, "--keep", target)
	}
	return t.run(ctx, env, args...)
}

// Runs "rfi clean-registry" on dir.
func (t *CommandTool) PruneDependencies(ctx context.Context, env Environment, dir string) error {
	return t.run(ctx, env, "clean-registry", "--registry-dir", dir, "--lockfile", t.lockfile(env))
}

func (t *CommandTool) run(ctx context.Context, env Environment, args ...string) error {
	bin := t.Binary
	if bin == "" {
		bin = internal.ToolName
	}
	return fault.Wrap(ErrTool, env.Exec(ctx, append([]string{bin}, args...)...))
}

func (t *CommandTool) lockfile(env Environment) string {
	if t.Lockfile != "" {
		return t.Lockfile
	}
	return path.Join(env.Workdir(), prune.LockfileName)
}
