package cli

import (
	"context"
	"fmt"

	"github.com/cruciblehq/cruxbuild/internal"
)

// Represents the 'cruxbuild version' command.
type VersionCmd struct {
	Short bool `short:"s" help:"Print the version number only."`
}

// Executes the version command.
//
// The short form prints the bare release version, which is what release
// scripts compare against the version file written next to build outputs.
func (c *VersionCmd) Run(ctx context.Context) error {
	if c.Short {
		fmt.Println(internal.Version())
		return nil
	}
	fmt.Printf("%s %s\n", internal.Name, internal.VersionString())
	return nil
}
