// Loads the cruxbuild configuration.
//
// Configuration is layered. Built-in defaults come first, then the global
// file in the user configuration directory, then a project-local file found
// by walking up from the project root, then CRUXBUILD_* environment
// variables. An explicit --config path replaces both file layers.
//
// Files may be written in YAML, JSON or TOML:
//
//	$XDG_CONFIG_HOME/cruxbuild/config.{yml,yaml,json,toml}
//	<project>/.cruxbuild.{yml,yaml,json,toml}
//
// Nested keys map to environment variables by joining path segments with
// underscores, so cache.namespace is read from CRUXBUILD_CACHE_NAMESPACE.
//
// Example usage:
//
//	cfg, err := config.Load(config.LoadOptions{ProjectDir: "."})
//	if err != nil {
//	    return err
//	}
//	store, err := cache.NewStore(cfg.Cache.Root)
package config
