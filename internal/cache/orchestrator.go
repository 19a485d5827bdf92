package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cruciblehq/cruxbuild/internal/fault"
	"github.com/cruciblehq/cruxbuild/internal/logfields"
	"github.com/cruciblehq/cruxbuild/internal/metrics"
)

// Steps reported in [EntryError] and logs.
const (
	stepResolve      = "resolve"
	stepMount        = "mount"
	stepRestoreMeta  = "restore-metadata"
	stepPruneOutput  = "prune-build-output"
	stepPruneDeps    = "prune-dependencies"
	stepSnapshotMeta = "snapshot-metadata"
	stepStage        = "stage"
	stepExport       = "export"
	stepWrite        = "write"
	stepCancelled    = "cancelled"
)

// Moves a fixed set of cached directories between a [Store] and build
// environments.
//
// Entries are processed sequentially in declaration order. An orchestrator
// serves one environment at a time.
type Orchestrator struct {
	store     *Store
	namespace string
	entries   []Entry
	keys      []string // Slot key of each entry, in entry order.
	tool      Tool
	target    string
	retention Retention
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// Configures an [Orchestrator].
type Option func(*Orchestrator)

// Sets the tool used for metadata and pruning. Defaults to a [CommandTool].
func WithTool(t Tool) Option {
	return func(o *Orchestrator) { o.tool = t }
}

// Sets the target triple being built, used by build output pruning.
func WithTarget(target string) Option {
	return func(o *Orchestrator) { o.target = target }
}

// Sets the retention policy for build output caches.
func WithRetention(r Retention) Option {
	return func(o *Orchestrator) { o.retention = r }
}

// Sets the recorder that receives per-entry timings.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// Sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Creates an orchestrator for the given entries.
//
// Returns an error of kind [ErrConfig] when the store is missing, the
// namespace is not a plain name, an entry path is empty or relative, or two
// entries name the same directory. No filesystem work is done here.
func NewOrchestrator(store *Store, namespace string, entries []Entry, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, fault.Wrapf(ErrConfig, "cache store is required")
	}
	if err := checkName(namespace); err != nil {
		return nil, err
	}

	keys, err := validateEntries(entries)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:     store,
		namespace: namespace,
		entries:   append([]Entry(nil), entries...),
		keys:      keys,
		tool:      &CommandTool{},
		recorder:  metrics.NoopRecorder{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.logger = o.logger.With(logfields.Namespace(namespace))
	return o, nil
}

// Returns the namespace the orchestrator writes to.
func (o *Orchestrator) Namespace() string {
	return o.namespace
}

// Returns a copy of the configured entries.
func (o *Orchestrator) Entries() []Entry {
	return append([]Entry(nil), o.entries...)
}

// Creates an empty slot for every entry that has none. Idempotent.
func (o *Orchestrator) Init() error {
	for i, e := range o.entries {
		if err := o.store.EnsureSlot(o.namespace, o.keys[i]); err != nil {
			return &EntryError{Path: e.Path, Step: stepResolve, Err: err}
		}
	}
	return nil
}

// Mounts every slot into env and restores recorded timestamps.
//
// Each entry's slot replaces whatever env holds at the entry path. For
// entries with PreserveMetadata the tool then reapplies the timestamps
// captured by the last dump; a tool failure only costs incremental reuse,
// so it is logged and the entry is treated as a cold cache. Failing to
// resolve or mount a slot aborts the restore with an [*EntryError] naming
// the entry, because building without it could produce wrong results. The
// working directory of env is the same on return as on entry.
func (o *Orchestrator) Restore(ctx context.Context, env Environment) (Environment, error) {
	prior := env.Workdir()
	defer env.SetWorkdir(prior)

	for i, e := range o.entries {
		if err := ctx.Err(); err != nil {
			return nil, &EntryError{Path: e.Path, Step: stepCancelled, Err: fault.Wrap(ErrEnvironment, err)}
		}

		start := time.Now()
		outcome, err := o.restoreEntry(ctx, env, e, o.keys[i])
		env.SetWorkdir(prior)
		o.recorder.ObserveRestore(e.Path, time.Since(start), outcome)

		if err != nil {
			o.logger.Error("cache restore failed", logfields.Entry(e.Path), logfields.Error(err))
			return nil, err
		}
	}

	return env, nil
}

func (o *Orchestrator) restoreEntry(ctx context.Context, env Environment, e Entry, key string) (metrics.Outcome, error) {
	log := o.logger.With(logfields.Entry(e.Path), logfields.Key(key))

	src, release, err := o.store.SlotAsSource(o.namespace, key)
	if err != nil {
		return metrics.OutcomeFailure, &EntryError{Path: e.Path, Step: stepResolve, Err: err}
	}
	defer release()

	if err := env.MountDirectory(ctx, e.Path, src); err != nil {
		return metrics.OutcomeFailure, &EntryError{Path: e.Path, Step: stepMount, Err: fault.Wrap(ErrEnvironment, err)}
	}
	log.Debug("cache mounted", logfields.Path(src.Path))

	if !e.PreserveMetadata {
		return metrics.OutcomeSuccess, nil
	}

	if err := o.tool.RestoreMetadata(ctx, env, e.Path); err != nil {
		log.Warn("metadata restore failed, continuing with a cold cache", logfields.Step(stepRestoreMeta), logfields.Error(err))
		return metrics.OutcomeFallback, nil
	}

	log.Debug("metadata restored")
	return metrics.OutcomeSuccess, nil
}

// Outcome of persisting one entry.
type EntryResult struct {
	Entry    Entry
	Key      string
	Err      error // Nil when the slot was updated.
	Duration time.Duration
}

// Outcome of [Orchestrator.Dump].
type DumpResult struct {
	Entries []EntryResult // One result per entry, in entry order.
}

// Reports whether every entry was persisted.
func (r *DumpResult) Success() bool {
	for _, e := range r.Entries {
		if e.Err != nil {
			return false
		}
	}
	return true
}

// Returns the entry errors joined, or nil on success.
func (r *DumpResult) Err() error {
	var errs []error
	for _, e := range r.Entries {
		if e.Err != nil {
			errs = append(errs, e.Err)
		}
	}
	return errors.Join(errs...)
}

// Prunes, snapshots and persists every entry of env.
//
// For each entry, in order: build output caches are pruned to the retained
// targets, dependency caches are pruned to the lockfile, timestamps are
// snapshotted for entries with PreserveMetadata, and the directory is
// exported into a staging directory that then atomically replaces the slot.
// A failing step abandons the staging directory and leaves the slot as it
// was; the remaining entries are still processed. Once ctx is done no
// further slot is written and the remaining entries are reported as failed.
// The working directory of env is the same on return as on entry.
func (o *Orchestrator) Dump(ctx context.Context, env Environment) *DumpResult {
	prior := env.Workdir()
	defer env.SetWorkdir(prior)

	result := &DumpResult{Entries: make([]EntryResult, 0, len(o.entries))}

	for i, e := range o.entries {
		start := time.Now()

		var err error
		if cerr := ctx.Err(); cerr != nil {
			err = &EntryError{Path: e.Path, Step: stepCancelled, Err: fault.Wrap(ErrEnvironment, cerr)}
		} else {
			err = o.dumpEntry(ctx, env, e, o.keys[i])
			env.SetWorkdir(prior)
		}

		d := time.Since(start)
		result.Entries = append(result.Entries, EntryResult{Entry: e, Key: o.keys[i], Err: err, Duration: d})

		switch {
		case err == nil:
			o.recorder.ObserveDump(e.Path, d, metrics.OutcomeSuccess)
		case ctx.Err() != nil:
			o.recorder.ObserveDump(e.Path, d, metrics.OutcomeSkipped)
			o.logger.Warn("cache dump skipped", logfields.Entry(e.Path), logfields.Error(err))
		default:
			o.recorder.ObserveDump(e.Path, d, metrics.OutcomeFailure)
			o.logger.Error("cache dump failed", logfields.Entry(e.Path), logfields.Error(err))
		}
	}

	return result
}

func (o *Orchestrator) dumpEntry(ctx context.Context, env Environment, e Entry, key string) error {
	log := o.logger.With(logfields.Entry(e.Path), logfields.Key(key))

	if e.BuildOutput {
		keep := o.retention.Targets(o.target)
		if err := o.tool.PruneBuildOutput(ctx, env, e.Path, keep); err != nil {
			return &EntryError{Path: e.Path, Step: stepPruneOutput, Err: fault.Wrap(ErrTool, err)}
		}
		log.Debug("build output pruned", "keep", keep)
	}

	if e.Dependencies {
		if err := o.tool.PruneDependencies(ctx, env, e.Path); err != nil {
			return &EntryError{Path: e.Path, Step: stepPruneDeps, Err: fault.Wrap(ErrTool, err)}
		}
		log.Debug("dependencies pruned")
	}

	if e.PreserveMetadata {
		if err := o.tool.SnapshotMetadata(ctx, env, e.Path); err != nil {
			return &EntryError{Path: e.Path, Step: stepSnapshotMeta, Err: fault.Wrap(ErrTool, err)}
		}
		log.Debug("metadata snapshotted")
	}

	staging, err := o.store.Stage(o.namespace, key)
	if err != nil {
		return &EntryError{Path: e.Path, Step: stepStage, Err: err}
	}

	if err := env.ExportDirectory(ctx, e.Path, staging); err != nil {
		o.discard(staging)
		return &EntryError{Path: e.Path, Step: stepExport, Err: fault.Wrap(ErrEnvironment, err)}
	}

	// The export may have been interrupted without reporting an error.
	if err := ctx.Err(); err != nil {
		o.discard(staging)
		return &EntryError{Path: e.Path, Step: stepExport, Err: fault.Wrap(ErrEnvironment, err)}
	}

	bytes, _, err := dirSize(staging.Path)
	if err != nil {
		o.discard(staging)
		return &EntryError{Path: e.Path, Step: stepWrite, Err: fault.Wrap(ErrStorage, err)}
	}

	if err := o.store.WriteSlot(o.namespace, key, staging); err != nil {
		o.discard(staging)
		return &EntryError{Path: e.Path, Step: stepWrite, Err: err}
	}

	o.recorder.SetSlotBytes(o.namespace, key, bytes)
	log.Info("cache persisted", logfields.Path(staging.Path), "bytes", bytes)
	return nil
}

// Removes a staging directory, logging instead of failing.
func (o *Orchestrator) discard(dir Directory) {
	if err := o.store.Discard(dir); err != nil {
		o.logger.Warn("failed to discard staging directory", logfields.Path(dir.Path), logfields.Error(err))
	}
}
