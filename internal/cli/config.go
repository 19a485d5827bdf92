package cli

import (
	"context"
	"os"

	"github.com/cruciblehq/cruxbuild/internal/config"
	"gopkg.in/yaml.v3"
)

// Represents the 'cruxbuild config' command.
type ConfigCmd struct{}

// Executes the config command, printing the effective configuration as
// YAML.
func (c *ConfigCmd) Run(ctx context.Context, cfg *config.Config) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
