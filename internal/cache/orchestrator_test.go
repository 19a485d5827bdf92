package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cruciblehq/cruxbuild/internal/fileinfo"
	"github.com/cruciblehq/cruxbuild/internal/metrics"
	"github.com/cruciblehq/cruxbuild/internal/prune"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	x86Triple = "x86_64-unknown-linux-musl"
	armTriple = "aarch64-unknown-linux-musl"
)

func newOrchestrator(t *testing.T, store *Store, entries []Entry, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(store, "test", entries, opts...)
	require.NoError(t, err)
	require.NoError(t, o.Init())
	return o
}

// Records observations for assertions.
type recordingRecorder struct {
	metrics.NoopRecorder
	restores map[string]metrics.Outcome
	dumps    map[string]metrics.Outcome
	bytes    map[string]int64
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{
		restores: map[string]metrics.Outcome{},
		dumps:    map[string]metrics.Outcome{},
		bytes:    map[string]int64{},
	}
}

func (r *recordingRecorder) ObserveRestore(entry string, _ time.Duration, outcome metrics.Outcome) {
	r.restores[entry] = outcome
}

func (r *recordingRecorder) ObserveDump(entry string, _ time.Duration, outcome metrics.Outcome) {
	r.dumps[entry] = outcome
}

func (r *recordingRecorder) SetSlotBytes(_, key string, bytes int64) {
	r.bytes[key] = bytes
}

func TestNewOrchestratorValidatesEntries(t *testing.T) {
	store := newStore(t)

	tests := []struct {
		name    string
		entries []Entry
	}{
		{"empty path", []Entry{{Path: ""}}},
		{"relative path", []Entry{{Path: "target"}}},
		{"duplicate path", []Entry{{Path: "/app/target"}, {Path: "/app/target/", BuildOutput: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(store, "ns", tt.entries)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}

	_, err := NewOrchestrator(nil, "ns", nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewOrchestrator(store, "../escape", nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestInitIdempotent(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, store, []Entry{{Path: "/deps"}, {Path: "/out"}})

	dir := slotDir(t, store, "test", "/deps")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg"), []byte("x"), 0o644))

	require.NoError(t, o.Init())
	require.NoError(t, o.Init())

	assert.FileExists(t, filepath.Join(slotDir(t, store, "test", "/deps"), "pkg"))
	slots, err := store.Slots("test")
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestRoundTrip(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, store, []Entry{{Path: "/deps"}}, WithTool(&localTool{}))
	ctx := context.Background()

	// Cold restore mounts an empty directory.
	first := newFakeEnv(t)
	_, err := o.Restore(ctx, first)
	require.NoError(t, err)
	assert.DirExists(t, first.host("/deps"))

	first.write(t, "/deps/a.txt", "alpha")
	first.write(t, "/deps/nested/b.txt", "beta")
	result := o.Dump(ctx, first)
	require.True(t, result.Success(), "dump failed: %v", result.Err())

	second := newFakeEnv(t)
	_, err = o.Restore(ctx, second)
	require.NoError(t, err)

	a, err := os.ReadFile(second.host("/deps/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(a))
	b, err := os.ReadFile(second.host("/deps/nested/b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(b))
}

func TestRestoreReplacesExistingContents(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, store, []Entry{{Path: "/deps"}}, WithTool(&localTool{}))

	env := newFakeEnv(t)
	env.write(t, "/deps/from-image", "x")

	_, err := o.Restore(context.Background(), env)
	require.NoError(t, err)
	assert.NoFileExists(t, env.host("/deps/from-image"))
}

func TestMetadataPreservation(t *testing.T) {
	store := newStore(t)
	entries := []Entry{{Path: "/app/target", PreserveMetadata: true}}
	o := newOrchestrator(t, store, entries, WithTool(&localTool{}))
	ctx := context.Background()

	old := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	first := newFakeEnv(t)
	first.write(t, "/app/target/release/deps/libserde-1.rlib", "rlib")
	first.write(t, "/app/target/release/deps/libgone-1.rlib", "stale")
	for _, p := range []string{"/app/target/release/deps/libserde-1.rlib", "/app/target/release/deps/libgone-1.rlib"} {
		require.NoError(t, os.Chtimes(first.host(p), old, old))
	}

	result := o.Dump(ctx, first)
	require.True(t, result.Success(), "dump failed: %v", result.Err())
	assert.FileExists(t, filepath.Join(slotDir(t, store, "test", "/app/target"), fileinfo.SidecarName))

	// Corrupt one file in the slot; its timestamp must not be restored.
	corrupt := filepath.Join(slotDir(t, store, "test", "/app/target"), "release/deps/libgone-1.rlib")
	require.NoError(t, os.WriteFile(corrupt, []byte("corrupted"), 0o644))

	second := newFakeEnv(t)
	_, err := o.Restore(ctx, second)
	require.NoError(t, err)

	info, err := os.Stat(second.host("/app/target/release/deps/libserde-1.rlib"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "mtime %v, want %v", info.ModTime(), old)

	info, err = os.Stat(second.host("/app/target/release/deps/libgone-1.rlib"))
	require.NoError(t, err)
	assert.False(t, info.ModTime().Equal(old))
}

func TestRestoreToolFailureIsColdCacheFallback(t *testing.T) {
	store := newStore(t)
	rec := newRecordingRecorder()
	o := newOrchestrator(t, store,
		[]Entry{{Path: "/app/target", PreserveMetadata: true}, {Path: "/deps"}},
		WithTool(&localTool{failRestore: true}),
		WithRecorder(rec),
	)

	env := newFakeEnv(t)
	env.workdir = "/work"

	_, err := o.Restore(context.Background(), env)
	require.NoError(t, err)
	assert.DirExists(t, env.host("/app/target"))
	assert.DirExists(t, env.host("/deps"))
	assert.Equal(t, metrics.OutcomeFallback, rec.restores["/app/target"])
	assert.Equal(t, metrics.OutcomeSuccess, rec.restores["/deps"])
	assert.Equal(t, "/work", env.Workdir())
}

func TestRestoreMountFailureAborts(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, store, []Entry{{Path: "/a"}, {Path: "/b"}, {Path: "/c"}}, WithTool(&localTool{}))

	env := newFakeEnv(t)
	env.failMount["/b"] = true

	_, err := o.Restore(context.Background(), env)
	require.Error(t, err)

	var entryErr *EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, "/b", entryErr.Path)
	assert.ErrorIs(t, err, ErrEnvironment)
	assert.Contains(t, err.Error(), "/b")

	assert.DirExists(t, env.host("/a"))
	assert.NoDirExists(t, env.host("/c"), "entries after the failure must not be mounted")
}

func TestRestoreWorkdirPreserved(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, store, []Entry{{Path: "/app/target", PreserveMetadata: true}})

	env := newFakeEnv(t)
	env.workdir = "/app"

	_, err := o.Restore(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "/app", env.Workdir())
	require.Len(t, env.execs, 1)
	assert.Equal(t, []string{"rfi", "restore"}, env.execs[0])
}

func TestDumpPrunesBuildOutputOfOtherTargets(t *testing.T) {
	store := newStore(t)
	tool := &localTool{packages: []prune.Package{{Name: "serde", Version: "1.0.0", Source: "registry+x"}}}
	o := newOrchestrator(t, store,
		[]Entry{{Path: "/app/target", BuildOutput: true}},
		WithTool(tool),
		WithTarget(x86Triple),
	)

	env := newFakeEnv(t)
	env.write(t, "/app/target/"+x86Triple+"/release/deps/libserde-1.rlib", "x86")
	env.write(t, "/app/target/"+armTriple+"/release/deps/libserde-1.rlib", "arm")

	result := o.Dump(context.Background(), env)
	require.True(t, result.Success(), "dump failed: %v", result.Err())
	assert.Equal(t, [][]string{{x86Triple}}, tool.keeps)

	slot := slotDir(t, store, "test", "/app/target")
	assert.FileExists(t, filepath.Join(slot, x86Triple, "release/deps/libserde-1.rlib"))
	assert.NoDirExists(t, filepath.Join(slot, armTriple))
}

func TestDumpRetainsListedTargets(t *testing.T) {
	store := newStore(t)
	tool := &localTool{packages: []prune.Package{{Name: "serde", Version: "1.0.0", Source: "registry+x"}}}
	o := newOrchestrator(t, store,
		[]Entry{{Path: "/app/target", BuildOutput: true}},
		WithTool(tool),
		WithTarget(x86Triple),
		WithRetention(Retention{Policy: RetainListed, KeepTargets: []string{armTriple}}),
	)

	env := newFakeEnv(t)
	env.write(t, "/app/target/"+x86Triple+"/release/deps/libserde-1.rlib", "x86")
	env.write(t, "/app/target/"+armTriple+"/release/deps/libserde-1.rlib", "arm")

	require.True(t, o.Dump(context.Background(), env).Success())

	slot := slotDir(t, store, "test", "/app/target")
	assert.FileExists(t, filepath.Join(slot, armTriple, "release/deps/libserde-1.rlib"))
}

// Three packages were downloaded; the lockfile now lists two of them.
func TestDumpPrunesUnreferencedDependencies(t *testing.T) {
	store := newStore(t)
	tool := &localTool{packages: []prune.Package{
		{Name: "serde", Version: "1.0.190", Source: "registry+x"},
		{Name: "rand", Version: "0.8.5", Source: "registry+x"},
	}}
	o := newOrchestrator(t, store, []Entry{{Path: "/root/.cargo/registry", Dependencies: true}}, WithTool(tool))

	env := newFakeEnv(t)
	for _, crate := range []string{"serde-1.0.190.crate", "rand-0.8.5.crate", "regex-1.10.0.crate"} {
		env.write(t, "/root/.cargo/registry/cache/index.crates.io-6f17d22bba15001f/"+crate, crate)
	}

	result := o.Dump(context.Background(), env)
	require.True(t, result.Success(), "dump failed: %v", result.Err())

	entries, err := os.ReadDir(filepath.Join(slotDir(t, store, "test", "/root/.cargo/registry"), "cache/index.crates.io-6f17d22bba15001f"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"serde-1.0.190.crate", "rand-0.8.5.crate"}, names)
}

func TestDumpPartialFailure(t *testing.T) {
	store := newStore(t)
	rec := newRecordingRecorder()
	o := newOrchestrator(t, store,
		[]Entry{{Path: "/a"}, {Path: "/b"}, {Path: "/c"}},
		WithTool(&localTool{}),
		WithRecorder(rec),
	)

	env := newFakeEnv(t)
	env.write(t, "/a/file", "a")
	env.write(t, "/b/file", "b")
	env.write(t, "/c/file", "c")
	env.failExport["/b"] = true

	result := o.Dump(context.Background(), env)

	assert.False(t, result.Success())
	require.Len(t, result.Entries, 3)
	assert.NoError(t, result.Entries[0].Err)
	assert.ErrorIs(t, result.Entries[1].Err, ErrEnvironment)
	assert.NoError(t, result.Entries[2].Err)
	assert.ErrorIs(t, result.Err(), ErrEnvironment)

	assert.FileExists(t, filepath.Join(slotDir(t, store, "test", "/a"), "file"))
	assert.NoFileExists(t, filepath.Join(slotDir(t, store, "test", "/b"), "file"))
	assert.FileExists(t, filepath.Join(slotDir(t, store, "test", "/c"), "file"))

	assert.Equal(t, metrics.OutcomeFailure, rec.dumps["/b"])
	assert.Equal(t, metrics.OutcomeSuccess, rec.dumps["/c"])

	// No staging directory is left behind for the failed entry.
	keyB, _ := Key("/b")
	data, err := os.ReadDir(filepath.Join(store.Root(), "test", dataDir))
	require.NoError(t, err)
	var forB int
	for _, d := range data {
		if len(d.Name()) > len(keyB) && d.Name()[:len(keyB)] == keyB {
			forB++
		}
	}
	assert.Equal(t, 1, forB, "only the initial empty slot should remain")
}

func TestDumpToolFailureKeepsPreviousSlot(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, store, []Entry{{Path: "/root/.cargo/registry", Dependencies: true}})

	prev := slotDir(t, store, "test", "/root/.cargo/registry")
	require.NoError(t, os.WriteFile(filepath.Join(prev, "previous"), nil, 0o644))

	env := newFakeEnv(t)
	env.write(t, "/root/.cargo/registry/new", "x")
	env.execErr = errors.New("exit status 1")

	result := o.Dump(context.Background(), env)
	assert.False(t, result.Success())
	assert.ErrorIs(t, result.Err(), ErrTool)

	slot := slotDir(t, store, "test", "/root/.cargo/registry")
	assert.FileExists(t, filepath.Join(slot, "previous"))
	assert.NoFileExists(t, filepath.Join(slot, "new"))
}

func TestDumpCancelledDoesNotUpdate(t *testing.T) {
	store := newStore(t)
	rec := newRecordingRecorder()
	o := newOrchestrator(t, store, []Entry{{Path: "/a"}, {Path: "/b"}}, WithTool(&localTool{}), WithRecorder(rec))

	prev := slotDir(t, store, "test", "/a")
	require.NoError(t, os.WriteFile(filepath.Join(prev, "previous"), nil, 0o644))

	env := newFakeEnv(t)
	env.write(t, "/a/new", "x")
	env.write(t, "/b/new", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := o.Dump(ctx, env)
	assert.False(t, result.Success())
	for _, e := range result.Entries {
		assert.ErrorIs(t, e.Err, context.Canceled)
	}

	assert.FileExists(t, filepath.Join(slotDir(t, store, "test", "/a"), "previous"))
	assert.NoFileExists(t, filepath.Join(slotDir(t, store, "test", "/a"), "new"))
	assert.NoFileExists(t, filepath.Join(slotDir(t, store, "test", "/b"), "new"))
	assert.Equal(t, metrics.OutcomeSkipped, rec.dumps["/a"])
}

func TestDumpRunsStepsInOrder(t *testing.T) {
	store := newStore(t)
	o := newOrchestrator(t, store,
		[]Entry{{Path: "/app/target", BuildOutput: true, Dependencies: true, PreserveMetadata: true}},
		WithTool(&CommandTool{Lockfile: "/app/Cargo.lock"}),
		WithTarget(x86Triple),
	)

	env := newFakeEnv(t)
	env.workdir = "/app"
	env.write(t, "/app/target/out", "x")

	result := o.Dump(context.Background(), env)
	require.True(t, result.Success(), "dump failed: %v", result.Err())

	assert.Equal(t, [][]string{
		{"rfi", "clean-target", "--target-dir", "/app/target", "--lockfile", "/app/Cargo.lock", "--keep", x86Triple},
		{"rfi", "clean-registry", "--registry-dir", "/app/target", "--lockfile", "/app/Cargo.lock"},
		{"rfi", "dump"},
	}, env.execs)
	assert.Equal(t, "/app", env.Workdir())
	assert.FileExists(t, filepath.Join(slotDir(t, store, "test", "/app/target"), "out"))
}
