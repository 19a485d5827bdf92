package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cruciblehq/cruxbuild/internal/build"
	"github.com/cruciblehq/cruxbuild/internal/cache"
	"github.com/cruciblehq/cruxbuild/internal/config"
	"github.com/dustin/go-humanize"
)

// Represents the 'cruxbuild cache' command group.
type CacheCmd struct {
	Init  CacheInitCmd  `cmd:"" help:"Create the host side of every configured cache entry."`
	Stats CacheStatsCmd `cmd:"" help:"Show the size and age of every cache slot."`
}

// Represents the 'cruxbuild cache init' command.
type CacheInitCmd struct {
	Target string `arg:"" optional:"" help:"Target whose namespace to prepare when caches are kept per target." placeholder:"TARGET"`
}

// Executes the cache init command.
func (c *CacheInitCmd) Run(ctx context.Context, cfg *config.Config) error {
	store, err := cache.NewStore(cfg.Cache.Root)
	if err != nil {
		return err
	}

	namespace := cfg.Cache.Namespace
	if cfg.Cache.PerTarget {
		target, err := build.ParseTarget(c.Target)
		if err != nil {
			return err
		}
		namespace = cfg.CacheNamespace(target.Name)
	}

	orch, err := cache.NewOrchestrator(store, namespace, cfg.Cache.Entries)
	if err != nil {
		return err
	}

	if err := orch.Init(); err != nil {
		return err
	}

	fmt.Printf("initialised %d cache entries in %s\n", len(orch.Entries()), namespace)
	return nil
}

// Represents the 'cruxbuild cache stats' command.
type CacheStatsCmd struct {
	Namespace string `short:"n" help:"Only show this namespace." placeholder:"NAME"`
}

// Executes the cache stats command.
func (c *CacheStatsCmd) Run(ctx context.Context, cfg *config.Config) error {
	store, err := cache.NewStore(cfg.Cache.Root)
	if err != nil {
		return err
	}

	namespaces := []string{c.Namespace}
	if c.Namespace == "" {
		if namespaces, err = store.Namespaces(); err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAMESPACE\tKEY\tSIZE\tFILES\tMODIFIED")

	var total uint64
	for _, ns := range namespaces {
		slots, err := store.Slots(ns)
		if err != nil {
			return err
		}
		for _, s := range slots {
			total += uint64(s.Bytes)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				ns, s.Key,
				humanize.Bytes(uint64(s.Bytes)),
				humanize.Comma(int64(s.Files)),
				humanize.Time(s.Modified),
			)
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%s in %s\n", humanize.Bytes(total), store.Root())
	return nil
}
