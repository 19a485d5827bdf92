package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/cruciblehq/cruxbuild/internal"
	"github.com/cruciblehq/cruxbuild/internal/config"
	"github.com/cruciblehq/cruxbuild/internal/logging"
)

// Represents the root command for cruxbuild.
var RootCmd struct {
	Quiet   bool   `short:"q" help:"Suppress informational output."`
	Verbose bool   `short:"v" help:"Enable verbose output."`
	Debug   bool   `short:"d" help:"Enable debug output."`
	Project string `short:"C" help:"Project root." type:"path" default:"." placeholder:"DIR"`
	Config  string `short:"c" help:"Configuration file. Replaces the global and project files." type:"path" placeholder:"FILE"`
	LogFile string `help:"Also write JSON logs to this file." type:"path" placeholder:"FILE"`
	NoCache bool   `help:"Build without restoring or persisting the directory cache."`

	Build   BuildCmd   `cmd:"" help:"Build the project for a target."`
	Cache   CacheCmd   `cmd:"" help:"Inspect and prepare the directory cache."`
	Show    ConfigCmd  `cmd:"" name:"config" help:"Print the effective configuration."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, loads configuration, configures logging, and runs the
// selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds cargo projects in containers, keeping dependency and build caches on the host between runs."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	applyModes()

	cfg, err := config.Load(config.LoadOptions{
		File:       RootCmd.Config,
		ProjectDir: RootCmd.Project,
	})
	if err != nil {
		return err
	}
	if RootCmd.LogFile != "" {
		cfg.Log.File = RootCmd.LogFile
	}

	closer, err := configureLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	kongCtx.Bind(cfg)

	return kongCtx.Run()
}

// Merges the mode flags into the process-wide switches seeded at link time.
func applyModes() {
	internal.SetDebug(RootCmd.Debug || internal.IsDebug())
	internal.SetQuiet(RootCmd.Quiet || internal.IsQuiet())
	internal.SetVerbose(RootCmd.Verbose || internal.IsVerbose())
	internal.SetNoCache(RootCmd.NoCache || internal.IsNoCache())
}

// Rebuilds the global logger from the final modes and the log settings.
func configureLogger(cfg *config.Config) (io.Closer, error) {
	logger, closer, err := logging.Setup(logging.Options{
		Level:      logging.Level(internal.IsDebug(), internal.IsQuiet()),
		Verbose:    internal.IsVerbose(),
		Stream:     os.Stderr,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return closer, nil
}

// Whether the given file is an interactive terminal.
func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
