package fileinfo

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func modTime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}

func TestSnapshotRecordsRegularFiles(t *testing.T) {
	root := t.TempDir()
	old := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	writeFile(t, root, "a.txt", "a", old)
	writeFile(t, root, "nested/b.txt", "b", old)
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "link")))
	writeFile(t, root, SidecarName, "stale", old)

	sc, err := Snapshot(root, SnapshotOptions{})
	require.NoError(t, err)

	files := make([]string, len(sc))
	for i, info := range sc {
		files[i] = info.File
	}
	assert.ElementsMatch(t, []string{"a.txt", "nested/b.txt"}, files)
	assert.True(t, sc[0].Mtime.Equal(old))
	assert.Equal(t, os.FileMode(0o644), sc[0].Mode)
}

func TestSnapshotIgnore(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "keep.txt", "k", now)
	writeFile(t, root, "skip/x.txt", "x", now)

	sc, err := Snapshot(root, SnapshotOptions{
		Ignore: func(rel string, isDir bool) bool { return rel == "skip" && isDir },
	})
	require.NoError(t, err)
	require.Len(t, sc, 1)
	assert.Equal(t, "keep.txt", sc[0].File)
}

func TestDumpApplyRoundTrip(t *testing.T) {
	root := t.TempDir()
	old := time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC)
	writeFile(t, root, "unchanged.o", "same", old)
	writeFile(t, root, "changed.o", "before", old)
	writeFile(t, root, "deleted.o", "gone", old)

	_, err := Dump(root, SnapshotOptions{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, SidecarName))

	// Simulate a copy into a fresh environment: every mtime is reset.
	now := time.Now()
	for _, name := range []string{"unchanged.o", "changed.o", "deleted.o"} {
		require.NoError(t, os.Chtimes(filepath.Join(root, name), now, now))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "changed.o"), []byte("after"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, "deleted.o")))

	stats, err := Apply(root)
	require.NoError(t, err)
	assert.Equal(t, RestoreStats{Applied: 1, Modified: 1, Missing: 1}, stats)

	assert.True(t, modTime(t, filepath.Join(root, "unchanged.o")).Equal(old))
	assert.False(t, modTime(t, filepath.Join(root, "changed.o")).Equal(old))
}

func TestApplyRestoresMode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "run.sh", "#!/bin/sh", time.Now())
	require.NoError(t, os.Chmod(filepath.Join(root, "run.sh"), 0o755))

	_, err := Dump(root, SnapshotOptions{})
	require.NoError(t, err)
	require.NoError(t, os.Chmod(filepath.Join(root, "run.sh"), 0o600))

	_, err = Apply(root)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestApplyWithoutSidecarIsNoop(t *testing.T) {
	root := t.TempDir()
	stats, err := Apply(root)
	require.NoError(t, err)
	assert.Zero(t, stats)
}

func TestRestoreRejectsEscapingPaths(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	require.NoError(t, os.Mkdir(root, 0o755))
	old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	writeFile(t, parent, "outside.txt", "o", time.Now())

	hash, err := HashFile(filepath.Join(parent, "outside.txt"))
	require.NoError(t, err)

	stats, err := Restore(root, Sidecar{{File: "../outside.txt", Mtime: old, Mode: 0o644, Hash: hash}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Missing)
	assert.False(t, modTime(t, filepath.Join(parent, "outside.txt")).Equal(old))
}

func TestSidecarReadWrite(t *testing.T) {
	mtime := time.Unix(1700000000, 123456789)
	sc := Sidecar{{File: "dir/file with, comma", Mtime: mtime, Mode: 0o640, Hash: "abc"}}

	var buf bytes.Buffer
	require.NoError(t, WriteSidecar(&buf, sc))
	assert.Contains(t, buf.String(), "file,mtime_seconds,mode,hash,mtime_nanos\n")

	got, err := ReadSidecar(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sc[0].File, got[0].File)
	assert.True(t, got[0].Mtime.Equal(mtime))
	assert.Equal(t, sc[0].Mode, got[0].Mode)
}

func TestReadSidecarLegacyFormat(t *testing.T) {
	in := "file,mtime_seconds,mode,hash\nsrc/main.rs,1600000000,33188,deadbeef\n"

	sc, err := ReadSidecar(bytes.NewBufferString(in))
	require.NoError(t, err)
	require.Len(t, sc, 1)
	assert.Equal(t, os.FileMode(0o644), sc[0].Mode)
	assert.Equal(t, int64(1600000000), sc[0].Mtime.Unix())
}

func TestReadSidecarMissingColumn(t *testing.T) {
	_, err := ReadSidecar(bytes.NewBufferString("file,mode\n"))
	assert.Error(t, err)
}

func TestGitIgnore(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, ".gitignore", "*.log\nbuild/\n", now)
	writeFile(t, root, "main.rs", "fn main() {}", now)
	writeFile(t, root, "debug.log", "x", now)
	writeFile(t, root, "build/out.bin", "x", now)
	writeFile(t, root, ".git/HEAD", "ref", now)

	ignore, err := GitIgnore(root)
	require.NoError(t, err)

	sc, err := Snapshot(root, SnapshotOptions{Ignore: ignore})
	require.NoError(t, err)

	files := make([]string, len(sc))
	for i, info := range sc {
		files[i] = info.File
	}
	assert.ElementsMatch(t, []string{".gitignore", "main.rs"}, files)
}
