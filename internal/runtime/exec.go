package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/cruciblehq/cruxbuild/internal/fault"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Output of a command execution inside a container.
type ExecResult struct {
	ExitCode int    // Exit code of the process.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// Controls a single command execution.
type ExecOptions struct {
	Env     []string  // "KEY=value" entries merged over the image environment.
	Workdir string    // Working directory; the image default when empty.
	Stdin   io.Reader // Optional standard input.
	Stream  io.Writer // Optional live copy of stdout and stderr.
}

// Runs a command and its arguments directly inside the container.
//
// Output is captured in the result and, when opts.Stream is set, copied to
// it as it is produced. A non-zero exit code is not an error; the caller
// decides.
func (c *Container) Exec(ctx context.Context, args []string, opts ExecOptions) (*ExecResult, error) {
	pspec, err := c.buildProcessSpec(ctx, opts.Env, opts.Workdir, args...)
	if err != nil {
		return nil, fault.Wrap(ErrRuntime, err)
	}

	var stdout, stderr bytes.Buffer
	var out, errOut io.Writer = &stdout, &stderr
	if opts.Stream != nil {
		out = io.MultiWriter(&stdout, opts.Stream)
		errOut = io.MultiWriter(&stderr, opts.Stream)
	}

	exitCode, err := c.execProcess(ctx, pspec, opts.Stdin, out, errOut)
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Builds an OCI process spec for running a command inside the container.
//
// The base values are copied from the container's own OCI spec, then env and
// workdir are overridden if provided.
func (c *Container) buildProcessSpec(ctx context.Context, env []string, workdir string, args ...string) (*specs.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args

	if len(env) > 0 {
		pspec.Env = mergeEnv(pspec.Env, env)
	}
	if workdir != "" {
		pspec.Cwd = workdir
	}

	return &pspec, nil
}

// Merges override env vars on top of a base env slice.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	for _, entry := range overrides {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	return result
}

// Starts a process inside the container's running task, waits for it to exit,
// and returns the exit code.
//
// The process is attached to the task as an additional exec, not as the
// primary process. Nil stdout and stderr are replaced with io.Discard; a nil
// stdin is left disconnected.
//
// The containerd shim holds both ends of the stdin FIFO open and will not
// propagate EOF on its own, so stdin is closed explicitly once the reader
// is exhausted. A reader that fails instead of reaching EOF fails the exec
// even when the process exits cleanly.
func (c *Container) execProcess(ctx context.Context, pspec *specs.Process, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	task, err := c.loadTask(ctx)
	if err != nil {
		return 0, err
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var sr *stdinReader
	if stdin != nil {
		sr = newStdinReader(stdin)
		stdin = sr
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		return 0, fault.Wrap(ErrRuntime, err)
	}

	code, err := awaitProcess(ctx, process, sr)
	if err != nil {
		return 0, err
	}
	if sr != nil {
		if err := sr.Err(); err != nil {
			return 0, fault.Wrap(ErrRuntime, err)
		}
	}
	return code, nil
}

// Loads the container's running task.
func (c *Container) loadTask(ctx context.Context) (containerd.Task, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fault.Wrap(ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil, fault.Wrap(ErrRuntime, err)
	}

	return task, nil
}

// Waits for an exec process to exit and returns the exit code.
//
// If stdin is non-nil, the process stdin is closed once it is exhausted.
// The process is always deleted before returning.
func awaitProcess(ctx context.Context, process containerd.Process, stdin *stdinReader) (int, error) {
	statusC, err := process.Wait(ctx)
	if err != nil {
		process.Delete(ctx)
		return 0, fault.Wrap(ErrRuntime, err)
	}

	if err := process.Start(ctx); err != nil {
		process.Delete(ctx)
		return 0, fault.Wrap(ErrRuntime, err)
	}

	exited := make(chan struct{})
	defer close(exited)

	if stdin != nil {
		go func() {
			select {
			case <-stdin.done:
				process.CloseIO(ctx, containerd.WithStdinCloser)
			case <-exited:
			}
		}()
	}

	var exitStatus containerd.ExitStatus
	select {
	case exitStatus = <-statusC:
	case <-ctx.Done():
		// The context is already done, so kill and delete with a fresh one.
		cleanup := context.WithoutCancel(ctx)
		process.Kill(cleanup, syscall.SIGKILL)
		<-statusC
		process.Delete(cleanup)
		return 0, fault.Wrap(ErrRuntime, ctx.Err())
	}
	process.Delete(ctx)

	code, _, err := exitStatus.Result()
	if err != nil {
		return 0, fault.Wrap(ErrRuntime, err)
	}

	return int(code), nil
}
