package build

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cruciblehq/cruxbuild/internal"
	"github.com/cruciblehq/cruxbuild/internal/cache"
	"github.com/cruciblehq/cruxbuild/internal/config"
	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/logfields"
	"github.com/cruciblehq/cruxbuild/internal/metrics"
	"github.com/cruciblehq/cruxbuild/internal/paths"
	"github.com/cruciblehq/cruxbuild/internal/runtime"
	"github.com/google/uuid"
)

// File written next to the exported binary.
const versionFile = "version.txt"

// Controls a build.
type Options struct {
	Config   *config.Config   // Effective configuration.
	Root     string           // Project root on the host.
	Target   Target           // Target to build.
	NoCache  bool             // Skips cache restore and dump.
	Recorder metrics.Recorder // Receives cache and build timings. Optional.
	Stream   io.Writer        // Receives the live output of build commands. Optional.
}

// Returned after a successful build.
type Result struct {
	Target  Target
	Binary  string            // Host path of the exported binary.
	Version string            // Package version, prefixed with "v".
	Cache   *cache.DumpResult // Nil when the cache is disabled.
}

// Builds the project in a fresh container.
//
// The project source is uploaded without git-ignored files, the configured
// cache entries are restored, the release binary for the target is built
// and exported to "<output>/<target>/" together with a version file, and
// the cache entries are written back. A failed cache dump is logged but
// does not fail the build.
func Run(ctx context.Context, rt *runtime.Runtime, opts Options) (*Result, error) {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	if timeout := opts.Config.Build.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	slog.Info("building",
		logfields.Target(opts.Target.Name),
		"triple", opts.Target.Triple,
		"image", opts.Config.Image,
		"root", opts.Root,
	)

	start := time.Now()
	res, err := newBuilder(rt, opts).run(ctx)
	opts.Recorder.ObserveBuild(opts.Target.Name, time.Since(start), err == nil)

	if err != nil {
		return nil, err
	}

	slog.Info("build finished",
		logfields.Target(opts.Target.Name),
		logfields.Path(res.Binary),
		"version", res.Version,
		logfields.Duration(time.Since(start).Round(time.Millisecond)),
	)

	return res, nil
}

// State of a single build.
type builder struct {
	rt    *runtime.Runtime
	opts  Options
	cfg   *config.Config
	cache *cache.Orchestrator // Nil when the cache is disabled.
}

func newBuilder(rt *runtime.Runtime, opts Options) *builder {
	return &builder{rt: rt, opts: opts, cfg: opts.Config}
}

func (b *builder) run(ctx context.Context) (*Result, error) {
	outDir := filepath.Join(b.cfg.Build.Output, b.opts.Target.Name)
	if err := os.MkdirAll(outDir, paths.DefaultDirMode); err != nil {
		return nil, fault.Wrap(ErrFileSystemOperation, err)
	}

	if err := b.prepareCache(); err != nil {
		return nil, err
	}

	ctr, err := b.rt.StartContainer(ctx, b.cfg.Image, internal.Name+"-"+uuid.NewString())
	if err != nil {
		return nil, fault.Wrap(ErrBuild, err)
	}
	defer ctr.Destroy(context.WithoutCancel(ctx))

	env := runtime.NewEnvironment(ctr, b.cfg.Build.Workdir)
	env.SetStream(b.opts.Stream)
	env.SetEnv("CARGO_HOME", b.cfg.Build.CargoHome)

	if err := b.uploadSource(ctx, env); err != nil {
		return nil, err
	}

	if err := b.installTool(ctx, env); err != nil {
		return nil, err
	}

	if b.cache != nil {
		if _, err := b.cache.Restore(ctx, env); err != nil {
			return nil, fault.Wrap(ErrBuild, err)
		}
	}

	if err := env.Exec(ctx, "cargo", "zigbuild", "--release", "--target", b.opts.Target.Triple); err != nil {
		return nil, fault.Wrap(ErrBuild, err)
	}

	res, err := b.exportArtifacts(ctx, env, outDir)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		res.Cache = b.cache.Dump(ctx, env)
		if err := res.Cache.Err(); err != nil {
			slog.Warn("cache was not fully persisted", logfields.Error(err))
		}
	}

	return res, nil
}

// Creates the cache orchestrator and the host side of every slot.
func (b *builder) prepareCache() error {
	if b.opts.NoCache {
		slog.Info("cache disabled")
		return nil
	}

	store, err := cache.NewStore(b.cfg.Cache.Root)
	if err != nil {
		return err
	}

	retention := b.cfg.Cache.Retention
	retention.KeepTargets = Triples(retention.KeepTargets)

	orch, err := cache.NewOrchestrator(store,
		b.cfg.CacheNamespace(b.opts.Target.Name),
		b.cfg.Cache.Entries,
		cache.WithTool(&cache.CommandTool{
			Binary:    b.cfg.Tool.Binary,
			GitIgnore: b.cfg.Tool.GitIgnore,
		}),
		cache.WithTarget(b.opts.Target.Triple),
		cache.WithRetention(retention),
		cache.WithRecorder(b.opts.Recorder),
	)
	if err != nil {
		return err
	}

	if err := orch.Init(); err != nil {
		return err
	}

	b.cache = orch
	return nil
}

// Uploads the project source to the working directory.
func (b *builder) uploadSource(ctx context.Context, env *runtime.Environment) error {
	filter, err := sourceFilter(b.opts.Root, b.cfg.Build.Output)
	if err != nil {
		return err
	}

	slog.Debug("uploading source", logfields.Path(b.opts.Root), "dest", b.cfg.Build.Workdir)

	if err := env.Upload(ctx, b.opts.Root, b.cfg.Build.Workdir, filter); err != nil {
		return fault.Wrap(ErrCopy, err)
	}
	return nil
}

// Exports the release binary and writes the version file next to it.
func (b *builder) exportArtifacts(ctx context.Context, env *runtime.Environment, outDir string) (*Result, error) {
	out, err := env.Output(ctx, metadataCommand...)
	if err != nil {
		return nil, fault.Wrap(ErrBuild, err)
	}

	meta, err := ParseMetadata([]byte(out))
	if err != nil {
		return nil, err
	}

	binary := b.cfg.Build.Binary
	if binary == "" {
		binary = meta.Binary()
	}

	release := path.Join(b.cfg.Build.Workdir, "target", b.opts.Target.Triple, "release", binary)
	if err := env.ExportFile(ctx, release, outDir); err != nil {
		return nil, fault.Wrap(ErrCopy, err)
	}

	version := meta.Version()
	if err := writeVersion(outDir, version); err != nil {
		return nil, err
	}

	return &Result{
		Target:  b.opts.Target,
		Binary:  filepath.Join(outDir, binary),
		Version: version,
	}, nil
}

// Writes version followed by a newline to the version file in dir.
func writeVersion(dir, version string) error {
	err := os.WriteFile(filepath.Join(dir, versionFile), []byte(version+"\n"), paths.DefaultFileMode)
	if err != nil {
		return fault.Wrap(ErrFileSystemOperation, err)
	}
	return nil
}

// Reports whether err was caused by the build being cancelled or timing out.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
