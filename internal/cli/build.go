package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/cruciblehq/cruxbuild/internal"
	"github.com/cruciblehq/cruxbuild/internal/build"
	"github.com/cruciblehq/cruxbuild/internal/config"
	"github.com/cruciblehq/cruxbuild/internal/metrics"
	"github.com/cruciblehq/cruxbuild/internal/runtime"
)

// Represents the 'cruxbuild build' command.
type BuildCmd struct {
	Target string `arg:"" optional:"" help:"Target to build (x64_linux, arm64_linux). Defaults to the host architecture." placeholder:"TARGET"`
	Image  string `help:"Override the build image." placeholder:"IMAGE"`
}

// Executes the build command.
//
// Metrics collected during the build are written to the configured textfile
// whether or not the build succeeds.
func (c *BuildCmd) Run(ctx context.Context, cfg *config.Config) error {
	name := c.Target
	if name == "" {
		name = cfg.Build.Target
	}

	target, err := build.ParseTarget(name)
	if err != nil {
		return err
	}

	if c.Image != "" {
		cfg.Image = c.Image
	}

	rt, err := runtime.New(cfg.Containerd.Address, cfg.Containerd.Namespace)
	if err != nil {
		return err
	}
	defer rt.Close()

	recorder := metrics.NewPrometheusRecorder(nil)
	defer writeMetrics(recorder, cfg.Metrics.Textfile)

	result, err := build.Run(ctx, rt, build.Options{
		Config:   cfg,
		Root:     RootCmd.Project,
		Target:   target,
		NoCache:  internal.IsNoCache(),
		Recorder: recorder,
		Stream:   buildStream(),
	})
	if err != nil {
		if build.IsCancelled(err) {
			slog.Warn("build cancelled")
		}
		return err
	}

	if result.Cache != nil && !result.Cache.Success() {
		slog.Warn("build succeeded with an incomplete cache")
	}

	return nil
}

// Returns where command output is streamed. Output is shown on interactive
// terminals and in verbose mode, never in quiet mode.
func buildStream() io.Writer {
	if internal.IsQuiet() {
		return nil
	}
	if internal.IsVerbose() || isatty(os.Stderr) {
		return os.Stderr
	}
	return nil
}

// Writes collected metrics to path. An empty path disables the textfile.
func writeMetrics(recorder *metrics.PrometheusRecorder, path string) {
	if path == "" {
		return
	}
	if err := recorder.WriteTextfile(path); err != nil {
		slog.Warn("failed to write metrics", "path", path, "error", err)
	}
}
