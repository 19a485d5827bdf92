package config

import (
	"path/filepath"
	"time"

	"github.com/cruciblehq/cruxbuild/internal/cache"
	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/paths"
	"github.com/go-playground/validator/v10"
)

// Default configuration values.
const (
	DefaultImage               = "messense/cargo-zigbuild:0.16.12"
	DefaultContainerdAddress   = "/run/containerd/containerd.sock"
	DefaultContainerdNamespace = "cruxbuild"
	DefaultWorkdir             = "/app"
	DefaultCargoHome           = "/root/.cargo"
	DefaultOutput              = "bin"
	DefaultToolBinary          = "rfi"
	DefaultLogMaxSize          = 50 // Megabytes.
	DefaultLogMaxBackups       = 3
)

// Effective cruxbuild configuration.
type Config struct {
	Image      string     `mapstructure:"image" yaml:"image" validate:"required"` // OCI archive path or registry reference.
	Containerd Containerd `mapstructure:"containerd" yaml:"containerd"`
	Build      Build      `mapstructure:"build" yaml:"build"`
	Cache      Cache      `mapstructure:"cache" yaml:"cache"`
	Tool       Tool       `mapstructure:"tool" yaml:"tool"`
	Metrics    Metrics    `mapstructure:"metrics" yaml:"metrics"`
	Log        Log        `mapstructure:"log" yaml:"log"`
}

// Connection to the containerd daemon.
type Containerd struct {
	Address   string `mapstructure:"address" yaml:"address" validate:"required"`
	Namespace string `mapstructure:"namespace" yaml:"namespace" validate:"required"`
}

// Build pipeline settings.
type Build struct {
	Target    string        `mapstructure:"target" yaml:"target"`                                    // Target name; empty selects the host architecture.
	Binary    string        `mapstructure:"binary" yaml:"binary"`                                    // Binary to export; empty reads it from cargo metadata.
	Workdir   string        `mapstructure:"workdir" yaml:"workdir" validate:"required,startswith=/"` // Source location inside the environment.
	CargoHome string        `mapstructure:"cargo_home" yaml:"cargo_home" validate:"required,startswith=/"`
	Output    string        `mapstructure:"output" yaml:"output" validate:"required"` // Host directory receiving artifacts.
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`  // Zero means no limit.
}

// Directory cache settings.
type Cache struct {
	Root      string          `mapstructure:"root" yaml:"root" validate:"required"`
	Namespace string          `mapstructure:"namespace" yaml:"namespace" validate:"required,excludesall=/\\"`
	PerTarget bool            `mapstructure:"per_target" yaml:"per_target"` // Suffixes the namespace with the target name.
	Entries   []cache.Entry   `mapstructure:"entries" yaml:"entries" validate:"dive"`
	Retention cache.Retention `mapstructure:"retention" yaml:"retention"`
}

// In-environment tool settings.
type Tool struct {
	Binary    string `mapstructure:"binary" yaml:"binary" validate:"required"`
	Install   string `mapstructure:"install" yaml:"install"`     // Host path of a binary to copy into the environment. Empty looks next to the executable and on PATH.
	GitIgnore bool   `mapstructure:"gitignore" yaml:"gitignore"` // Skips git-ignored files when snapshotting metadata.
}

// Metrics output.
type Metrics struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"` // Node exporter textfile; empty disables it.
}

// Log file output.
type Log struct {
	File       string `mapstructure:"file" yaml:"file"` // Empty disables the log file.
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Returns the built-in cache entries.
//
// The build output directory keeps its timestamps so incremental builds
// survive the round trip; the package registry is pruned to the lockfile.
func DefaultEntries() []cache.Entry {
	return []cache.Entry{
		{Path: DefaultWorkdir + "/target", BuildOutput: true, PreserveMetadata: true},
		{Path: DefaultCargoHome + "/registry", Dependencies: true},
	}
}

// Returns the configuration used when no file or variable overrides it.
func Default() *Config {
	return &Config{
		Image: DefaultImage,
		Containerd: Containerd{
			Address:   DefaultContainerdAddress,
			Namespace: DefaultContainerdNamespace,
		},
		Build: Build{
			Workdir:   DefaultWorkdir,
			CargoHome: DefaultCargoHome,
			Output:    DefaultOutput,
		},
		Cache: Cache{
			Root:      paths.CacheRoot(),
			Namespace: paths.DefaultNamespace,
			Entries:   DefaultEntries(),
		},
		Tool: Tool{
			Binary: DefaultToolBinary,
		},
		Log: Log{
			MaxSize:    DefaultLogMaxSize,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}

// Returns the cache namespace for target.
//
// With PerTarget set, each target gets its own namespace so alternating
// targets never evict each other's build output.
func (c *Config) CacheNamespace(target string) string {
	if c.Cache.PerTarget && target != "" {
		return c.Cache.Namespace + "-" + target
	}
	return c.Cache.Namespace
}

// Validates the configuration and resolves host paths to absolute form.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fault.Wrap(ErrInvalid, err)
	}

	for _, p := range []*string{&c.Cache.Root, &c.Build.Output, &c.Tool.Install, &c.Metrics.Textfile, &c.Log.File} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fault.Wrap(ErrInvalid, err)
		}
		*p = abs
	}

	return nil
}
