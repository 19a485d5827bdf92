// Package cache persists directories of ephemeral build environments on the
// host.
//
// A build environment starts from a pristine image every time, so anything
// it downloads or compiles is lost when it is torn down. This package keeps
// selected directories (a package registry, a compiler output tree) in
// durable slots on the host and moves them in and out of each environment.
//
// Each directory is described by an [Entry]. Its slot is named by [Key],
// which depends only on the in-environment path, and lives under a
// namespace in a [Store]:
//
//	<root>/<namespace>/<key>
//
// An [Orchestrator] drives the lifecycle. [Orchestrator.Init] creates empty
// slots. [Orchestrator.Restore] mounts every slot into a fresh environment
// and reapplies recorded file timestamps. [Orchestrator.Dump] prunes each
// directory according to its entry flags, snapshots timestamps, and writes
// the directory back to its slot atomically. A failed restore aborts the
// build; a failed dump is reported per entry and leaves the other slots
// updated.
//
// Example usage:
//
//	store, err := cache.NewStore(paths.CacheRoot())
//	if err != nil {
//	    return err
//	}
//
//	orch, err := cache.NewOrchestrator(store, "default", []cache.Entry{
//	    {Path: "/app/target", BuildOutput: true, PreserveMetadata: true},
//	    {Path: "/root/.cargo/registry", Dependencies: true},
//	}, cache.WithTarget("x86_64-unknown-linux-musl"))
//	if err != nil {
//	    return err
//	}
//
//	if err := orch.Init(); err != nil {
//	    return err
//	}
//	if _, err := orch.Restore(ctx, env); err != nil {
//	    return err
//	}
//
//	// run the build in env
//
//	if result := orch.Dump(ctx, env); !result.Success() {
//	    slog.Warn("cache partially persisted", "error", result.Err())
//	}
//
// Concurrent runs against the same namespace are not coordinated. Callers
// that build in parallel should give each job its own namespace.
package cache
