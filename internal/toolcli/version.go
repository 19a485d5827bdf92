package toolcli

import (
	"context"
	"fmt"

	"github.com/cruciblehq/cruxbuild/internal"
	"github.com/cruciblehq/cruxbuild/internal/fileinfo"
)

// Represents the 'rfi version' command.
type VersionCmd struct{}

// Executes the version command. The sidecar name is printed too, since it
// is what ties an rfi binary to the caches it can read.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Printf("%s %s (sidecar %s)\n", internal.ToolName, internal.VersionString(), fileinfo.SidecarName)
	return nil
}
