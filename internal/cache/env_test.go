package cache

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cruciblehq/cruxbuild/internal/fileinfo"
	"github.com/cruciblehq/cruxbuild/internal/prune"
)

// Build environment backed by a host directory. In-environment paths map to
// the same paths below root. Mounting resets file times, like copying into a
// real container does.
type fakeEnv struct {
	root       string
	workdir    string
	failMount  map[string]bool
	failExport map[string]bool
	execErr    error
	execs      [][]string
}

func newFakeEnv(t *testing.T) *fakeEnv {
	t.Helper()
	return &fakeEnv{
		root:       t.TempDir(),
		workdir:    "/app",
		failMount:  map[string]bool{},
		failExport: map[string]bool{},
	}
}

func (f *fakeEnv) host(p string) string {
	return filepath.Join(f.root, filepath.FromSlash(p))
}

func (f *fakeEnv) Workdir() string       { return f.workdir }
func (f *fakeEnv) SetWorkdir(dir string) { f.workdir = dir }

func (f *fakeEnv) MountDirectory(_ context.Context, path string, src Directory) error {
	if f.failMount[path] {
		return errors.New("mount rejected")
	}
	dst := f.host(path)
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return copyTree(src.Path, dst, false)
}

func (f *fakeEnv) Exec(_ context.Context, args ...string) error {
	f.execs = append(f.execs, args)
	return f.execErr
}

func (f *fakeEnv) ExportDirectory(_ context.Context, path string, dest Directory) error {
	if f.failExport[path] {
		return errors.New("export rejected")
	}
	return copyTree(f.host(path), dest.Path, true)
}

// Writes a file inside the environment.
func (f *fakeEnv) write(t *testing.T, p, content string) {
	t.Helper()
	path := f.host(p)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Copies a directory tree. With keepTimes, modification times are carried
// over; otherwise copied files get the current time.
func copyTree(src, dst string, keepTimes bool) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		if keepTimes {
			return os.Chtimes(target, info.ModTime(), info.ModTime())
		}
		now := time.Now()
		return os.Chtimes(target, now, now)
	})
}

// [Tool] that runs the real fileinfo and prune code against a [fakeEnv].
type localTool struct {
	packages    []prune.Package
	failRestore bool
	keeps       [][]string
}

func (l *localTool) RestoreMetadata(_ context.Context, env Environment, dir string) error {
	if l.failRestore {
		return errors.New("tool crashed")
	}
	env.SetWorkdir(dir)
	_, err := fileinfo.Apply(env.(*fakeEnv).host(dir))
	return err
}

func (l *localTool) SnapshotMetadata(_ context.Context, env Environment, dir string) error {
	env.SetWorkdir(dir)
	_, err := fileinfo.Dump(env.(*fakeEnv).host(dir), fileinfo.SnapshotOptions{})
	return err
}

func (l *localTool) PruneBuildOutput(_ context.Context, env Environment, dir string, keepTargets []string) error {
	l.keeps = append(l.keeps, keepTargets)
	return prune.CleanTargetDir(env.(*fakeEnv).host(dir), l.packages, keepTargets)
}

func (l *localTool) PruneDependencies(_ context.Context, env Environment, dir string) error {
	return prune.CleanRegistry(env.(*fakeEnv).host(dir), l.packages)
}

// Returns the host directory currently backing the slot of an in-environment
// path.
func slotDir(t *testing.T, store *Store, namespace, p string) string {
	t.Helper()
	key, err := Key(p)
	if err != nil {
		t.Fatal(err)
	}
	src, release, err := store.SlotAsSource(namespace, key)
	if err != nil {
		t.Fatal(err)
	}
	release()
	return src.Path
}
