package runtime

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/cruciblehq/cruxbuild/internal/cache"
	"github.com/cruciblehq/cruxbuild/internal/fault"
)

var _ cache.Environment = (*Environment)(nil)

// Mutable build state layered over a [Container].
//
// The working directory and environment variables set here apply to every
// command run through the environment. Paths are absolute paths inside the
// container.
type Environment struct {
	ctr     *Container
	workdir string
	env     map[string]string
	stream  io.Writer
}

// Creates an environment for ctr with the given initial working directory.
func NewEnvironment(ctr *Container, workdir string) *Environment {
	return &Environment{
		ctr:     ctr,
		workdir: workdir,
		env:     make(map[string]string),
	}
}

// Sets a writer receiving the live output of every command. Nil disables
// streaming.
func (e *Environment) SetStream(w io.Writer) {
	e.stream = w
}

// Returns the current working directory.
func (e *Environment) Workdir() string {
	return e.workdir
}

// Sets the working directory for subsequent commands.
func (e *Environment) SetWorkdir(dir string) {
	e.workdir = dir
}

// Sets an environment variable for subsequent commands.
func (e *Environment) SetEnv(name, value string) {
	e.env[name] = value
}

// Returns an environment variable set with [Environment.SetEnv].
func (e *Environment) Env(name string) string {
	return e.env[name]
}

// Formats the environment as "key=value" strings, sorted by key.
func (e *Environment) environ() []string {
	env := make([]string, 0, len(e.env))
	for _, k := range slices.Sorted(maps.Keys(e.env)) {
		env = append(env, k+"="+e.env[k])
	}
	return env
}

// Runs a command in the working directory.
//
// A non-zero exit status is returned as an error of kind [ErrExitStatus]
// carrying the tail of the command's standard error.
func (e *Environment) Exec(ctx context.Context, args ...string) error {
	_, err := e.Output(ctx, args...)
	return err
}

// Runs a command in the working directory and returns its standard output.
func (e *Environment) Output(ctx context.Context, args ...string) (string, error) {
	slog.Debug("exec", "args", args, "workdir", e.workdir)

	result, err := e.ctr.Exec(ctx, args, ExecOptions{
		Env:     e.environ(),
		Workdir: e.workdir,
		Stream:  e.stream,
	})
	if err != nil {
		return "", err
	}

	if result.ExitCode != 0 {
		return result.Stdout, fault.Wrapf(ErrExitStatus, "%s exited with code %d: %s",
			strings.Join(args, " "), result.ExitCode, tail(result.Stderr))
	}
	return result.Stdout, nil
}

// Replaces the contents of dir with a copy of the host directory src.
func (e *Environment) MountDirectory(ctx context.Context, dir string, src cache.Directory) error {
	if err := e.ctr.RemoveAll(ctx, dir); err != nil {
		return err
	}
	return e.Upload(ctx, src.Path, dir, nil)
}

// Copies the host directory hostDir to dir in the container.
//
// Existing files under dir are overwritten but not removed. Entries
// rejected by filter are not copied.
func (e *Environment) Upload(ctx context.Context, hostDir, dir string, filter Filter) error {
	if err := e.ctr.MkdirAll(ctx, path.Dir(dir)); err != nil {
		return err
	}

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		writeErr := writeDirToTar(tw, hostDir, path.Base(dir), filter)
		if closeErr := tw.Close(); writeErr == nil {
			writeErr = closeErr
		}
		pw.CloseWithError(writeErr)
	}()

	err := e.ctr.CopyTo(ctx, pr, path.Dir(dir))
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}

// Copies a single host file to p in the container with the given mode.
func (e *Environment) CopyFile(ctx context.Context, hostPath, p string, mode fs.FileMode) error {
	if err := e.ctr.MkdirAll(ctx, path.Dir(p)); err != nil {
		return err
	}

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		writeErr := writeFileToTar(tw, hostPath, path.Base(p), mode)
		if closeErr := tw.Close(); writeErr == nil {
			writeErr = closeErr
		}
		pw.CloseWithError(writeErr)
	}()

	err := e.ctr.CopyTo(ctx, pr, path.Dir(p))
	pr.CloseWithError(io.ErrClosedPipe)
	return err
}

// Copies the contents of dir into the host directory dest, preserving
// modification times and permission bits of regular files.
func (e *Environment) ExportDirectory(ctx context.Context, dir string, dest cache.Directory) error {
	return e.export(ctx, dir, dest.Path, path.Base(dir))
}

// Copies the file at p into the host directory destDir under its base name.
func (e *Environment) ExportFile(ctx context.Context, p, destDir string) error {
	return e.export(ctx, p, destDir, "")
}

// Streams p out of the container and extracts it into hostDir, removing
// the leading element strip from entry names.
func (e *Environment) export(ctx context.Context, p, hostDir, strip string) error {
	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		err := e.ctr.CopyFrom(ctx, pw, p)
		pw.CloseWithError(err)
		errc <- err
	}()

	extractErr := extractTar(pr, hostDir, strip)

	// Drain so the producer can finish when extraction stopped early.
	io.Copy(io.Discard, pr)

	if err := <-errc; err != nil {
		return err
	}
	return extractErr
}
