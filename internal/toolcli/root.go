package toolcli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/cruxbuild/internal"
	"github.com/cruciblehq/cruxbuild/internal/logging"
)

// Represents the root command for rfi.
var RootCmd struct {
	Quiet bool `short:"q" help:"Suppress informational output."`
	Debug bool `short:"d" help:"Enable debug output."`

	Restore       RestoreCmd       `cmd:"" default:"withargs" help:"Restore file metadata from the sidecar in a directory."`
	Dump          DumpCmd          `cmd:"" help:"Record file metadata of a directory in a sidecar."`
	CleanTarget   CleanTargetCmd   `cmd:"" help:"Prune a cargo target directory."`
	CleanRegistry CleanRegistryCmd `cmd:"" help:"Prune a cargo registry directory."`
	Version       VersionCmd       `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.ToolName),
		kong.Description("Restores file info of cached build directories and prunes cargo caches."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	logger, _, err := logging.Setup(logging.Options{
		Level:  logging.Level(RootCmd.Debug || internal.IsDebug(), RootCmd.Quiet || internal.IsQuiet()),
		Stream: os.Stderr,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	return kongCtx.Run()
}
