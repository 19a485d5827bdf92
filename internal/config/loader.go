package config

import (
	"log/slog"
	"strings"

	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/paths"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Prefix of environment variables read by the loader.
const EnvPrefix = "CRUXBUILD"

// Controls where configuration is read from.
type LoadOptions struct {
	File       string // Explicit configuration file. Replaces the global and local files.
	ProjectDir string // Starting point of the local file search. Empty skips it.
	GlobalDir  string // Directory of the global file. Empty uses the user configuration directory.
}

// Loads, decodes and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readFiles(v, opts); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fault.Wrap(ErrDecode, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Reads the configuration files selected by opts into v.
//
// Later files are merged over earlier ones, so the local file wins over the
// global file key by key.
func readFiles(v *viper.Viper, opts LoadOptions) error {
	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return fault.Wrap(ErrRead, err)
		}
		slog.Debug("loaded configuration", "file", opts.File)
		return nil
	}

	globalDir := opts.GlobalDir
	if globalDir == "" {
		globalDir = paths.ConfigDir()
	}

	files := []string{FindGlobalConfig(globalDir)}
	if opts.ProjectDir != "" {
		files = append(files, FindLocalConfig(opts.ProjectDir))
	}

	for _, file := range files {
		if file == "" {
			continue
		}
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return fault.Wrap(ErrRead, err)
		}
		slog.Debug("loaded configuration", "file", file)
	}

	return nil
}

// Registers every default with v.
//
// Each key must have a default for AutomaticEnv to reach it through
// Unmarshal.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("image", d.Image)
	v.SetDefault("containerd.address", d.Containerd.Address)
	v.SetDefault("containerd.namespace", d.Containerd.Namespace)

	v.SetDefault("build.target", d.Build.Target)
	v.SetDefault("build.binary", d.Build.Binary)
	v.SetDefault("build.workdir", d.Build.Workdir)
	v.SetDefault("build.cargo_home", d.Build.CargoHome)
	v.SetDefault("build.output", d.Build.Output)
	v.SetDefault("build.timeout", d.Build.Timeout.String())

	v.SetDefault("cache.root", d.Cache.Root)
	v.SetDefault("cache.namespace", d.Cache.Namespace)
	v.SetDefault("cache.per_target", d.Cache.PerTarget)
	v.SetDefault("cache.entries", entryMaps(d))
	v.SetDefault("cache.retention.policy", d.Cache.Retention.Policy.String())
	v.SetDefault("cache.retention.keep_targets", []string{})

	v.SetDefault("tool.binary", d.Tool.Binary)
	v.SetDefault("tool.install", d.Tool.Install)
	v.SetDefault("tool.gitignore", d.Tool.GitIgnore)

	v.SetDefault("metrics.textfile", d.Metrics.Textfile)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.compress", d.Log.Compress)
}

// Returns the default entries in the shape a configuration file would use.
func entryMaps(d *Config) []map[string]any {
	out := make([]map[string]any, 0, len(d.Cache.Entries))
	for _, e := range d.Cache.Entries {
		out = append(out, map[string]any{
			"path":              e.Path,
			"dependencies":      e.Dependencies,
			"build_output":      e.BuildOutput,
			"preserve_metadata": e.PreserveMetadata,
		})
	}
	return out
}

// Returns the hook chain used to decode raw values.
//
// Text unmarshalling covers the retention policy. Comma separated strings
// are accepted for lists so they can be set from the environment.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
