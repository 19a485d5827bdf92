package toolcli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/cruxbuild/internal/fileinfo"
)

// Represents the 'rfi restore' command.
type RestoreCmd struct {
	Dir string `help:"Directory to restore." type:"existingdir" default:"." placeholder:"DIR"`
}

// Executes the restore command.
//
// Files whose content changed since the sidecar was written keep their
// current metadata, so the build tool sees them as modified.
func (c *RestoreCmd) Run(ctx context.Context) error {
	stats, err := fileinfo.Apply(c.Dir)
	if err != nil {
		return err
	}

	slog.Info("restored file info",
		"dir", c.Dir,
		"applied", stats.Applied,
		"modified", stats.Modified,
		"missing", stats.Missing,
	)
	return nil
}

// Represents the 'rfi dump' command.
type DumpCmd struct {
	Dir       string `help:"Directory to record." type:"existingdir" default:"." placeholder:"DIR"`
	GitIgnore bool   `name:"gitignore" help:"Skip files ignored by git."`
}

// Executes the dump command.
func (c *DumpCmd) Run(ctx context.Context) error {
	var opts fileinfo.SnapshotOptions
	if c.GitIgnore {
		ignore, err := fileinfo.GitIgnore(c.Dir)
		if err != nil {
			return err
		}
		opts.Ignore = ignore
	}

	sc, err := fileinfo.Dump(c.Dir, opts)
	if err != nil {
		return err
	}

	slog.Info("recorded file info", "dir", c.Dir, "files", len(sc))
	return nil
}
