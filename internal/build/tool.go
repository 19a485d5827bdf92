package build

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"

	"github.com/cruciblehq/cruxbuild/internal/config"
	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/logfields"
	"github.com/cruciblehq/cruxbuild/internal/runtime"
)

// Directory the tool binary is installed to inside the environment.
const toolInstallDir = "/usr/local/bin"

// Makes the cache tool available inside the environment.
//
// The host binary from [resolveTool] is copied in when there is one.
// Otherwise the image must already provide the tool; if it does not, the
// build stops here rather than failing every cache dump later.
func (b *builder) installTool(ctx context.Context, env *runtime.Environment) error {
	if b.cache == nil {
		return nil
	}

	name := path.Base(b.cfg.Tool.Binary)
	src := resolveTool(b.cfg.Tool)
	if src == "" {
		if _, err := env.Output(ctx, "sh", "-c", "command -v "+b.cfg.Tool.Binary); err != nil {
			return fault.Wrapf(ErrTool, "%s is not installed in image %s and was not found on the host; set tool.install", name, b.cfg.Image)
		}
		slog.Debug("using tool from image", "tool", b.cfg.Tool.Binary)
		return nil
	}

	dest := path.Join(toolInstallDir, name)
	slog.Debug("installing tool", logfields.Path(src), "dest", dest)

	if err := env.CopyFile(ctx, src, dest, 0o755); err != nil {
		return fault.Wrap(ErrCopy, err)
	}
	return nil
}

// Returns the host path of the tool binary to install.
//
// An explicit tool.install wins. Otherwise a binary named like the tool is
// looked up next to the running executable, where release archives ship
// it, and then on PATH. Returns "" when there is none.
func resolveTool(cfg config.Tool) string {
	if cfg.Install != "" {
		return cfg.Install
	}

	name := path.Base(cfg.Binary)

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if isExecutable(candidate) {
			return candidate
		}
	}

	if found, err := exec.LookPath(name); err == nil {
		if abs, err := filepath.Abs(found); err == nil {
			return abs
		}
	}

	return ""
}

func isExecutable(file string) bool {
	info, err := os.Stat(file)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
