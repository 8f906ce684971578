package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kballard/go-shellquote"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sync/semaphore"
)

const (

	// Shell used for scripts when none is configured.
	defaultShell = "/bin/sh"

	// Total attempts for an invocation that fails spuriously.
	DefaultMaxAttempts = 3
)

// Sequence counter for invocation identifiers in debug logs.
var execSeq uint64

// Returns a unique invocation identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Configures a [Runner].
type Options struct {
	Jobs        int       // Maximum concurrent subprocesses. Defaults to the CPU count.
	DryRun      bool      // Print commands instead of running them.
	Shell       string    // Shell for scripts. Defaults to /bin/sh.
	MaxAttempts int       // Attempts for spurious failures. Defaults to [DefaultMaxAttempts].
	Env         []string  // Variables set on every invocation, overriding the caller's.
	Out         io.Writer // Destination for dry-run output. Defaults to stdout.
}

// Runs subprocesses on the build host.
//
// A runner is safe for concurrent use.
type Runner struct {
	shell       string
	dryRun      bool
	maxAttempts int
	env         []string
	out         io.Writer
	sem         *semaphore.Weighted
}

// Creates a runner from options.
func NewRunner(opts Options) *Runner {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if opts.Shell == "" {
		opts.Shell = defaultShell
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Runner{
		shell:       opts.Shell,
		dryRun:      opts.DryRun,
		maxAttempts: opts.MaxAttempts,
		env:         opts.Env,
		out:         opts.Out,
		sem:         semaphore.NewWeighted(int64(opts.Jobs)),
	}
}

// Whether the runner prints commands instead of executing them.
func (r *Runner) DryRun() bool {
	return r.dryRun
}

// Runs a script through the shell as "shell -c script".
func (r *Runner) Script(ctx context.Context, script, dir string, env []string, log io.Writer) error {
	if strings.TrimSpace(script) == "" {
		return ErrEmptyCommand
	}
	_, err := r.run(ctx, r.buildProcessSpec(env, dir, r.shell, "-c", script), log)
	return err
}

// Runs a command directly, without shell wrapping.
func (r *Runner) Command(ctx context.Context, dir string, env []string, log io.Writer, args ...string) error {
	if len(args) == 0 {
		return ErrEmptyCommand
	}
	_, err := r.run(ctx, r.buildProcessSpec(env, dir, args...), log)
	return err
}

// Runs a command directly and returns its standard output.
//
// Standard error is written to log. Output is never captured in dry-run mode
// since the command does not run; an empty string is returned.
func (r *Runner) Output(ctx context.Context, dir string, env []string, log io.Writer, args ...string) (string, error) {
	if len(args) == 0 {
		return "", ErrEmptyCommand
	}
	return r.run(ctx, r.buildProcessSpec(env, dir, args...), log)
}

// Builds the process description for an invocation.
//
// The caller's environment defaults to the host environment, and the
// runner's own variables are layered on top.
func (r *Runner) buildProcessSpec(env []string, dir string, args ...string) *specs.Process {
	if env == nil {
		env = os.Environ()
	}
	return &specs.Process{
		Args: args,
		Env:  mergeEnv(env, r.env),
		Cwd:  dir,
	}
}

// Merges override env vars on top of a base env slice.
//
// The result is sorted by key so invocations are reproducible.
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
	slices.Sort(result)
	return result
}

// Runs a process, retrying spurious failures.
//
// Standard output and standard error both go to log; standard output is also
// returned. Each attempt holds one slot of the job semaphore.
func (r *Runner) run(ctx context.Context, p *specs.Process, log io.Writer) (string, error) {
	if log == nil {
		log = io.Discard
	}

	if r.dryRun {
		fmt.Fprintln(r.out, formatCommand(p))
		return "", nil
	}

	id := nextExecID()
	for attempt := 1; ; attempt++ {
		slog.Debug("exec", "id", id, "attempt", attempt, "cwd", p.Cwd, "args", p.Args)

		stdout, combined, code, err := r.execProcess(ctx, p, log)
		if err == nil {
			return stdout, nil
		}

		if ctx.Err() == nil && attempt < r.maxAttempts && isSpurious(combined) {
			slog.Warn("retrying spurious failure", "id", id, "attempt", attempt, "args", p.Args)
			fmt.Fprintf(log, "\n--- spurious failure, retrying (attempt %d of %d) ---\n", attempt+1, r.maxAttempts)
			continue
		}

		return stdout, &CommandError{
			Args:     p.Args,
			Dir:      p.Cwd,
			ExitCode: code,
			Attempts: attempt,
			Err:      err,
		}
	}
}

// Starts a process, waits for it to exit, and returns its standard output,
// its combined output, and its exit code.
func (r *Runner) execProcess(ctx context.Context, p *specs.Process, log io.Writer) (string, string, int, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", "", -1, err
	}
	defer r.sem.Release(1)

	var stdout, combined bytes.Buffer
	shared := &lockedWriter{w: io.MultiWriter(&combined, log)}

	cmd := exec.CommandContext(ctx, p.Args[0], p.Args[1:]...)
	cmd.Dir = p.Cwd
	cmd.Env = p.Env
	cmd.Stdout = io.MultiWriter(&stdout, shared)
	cmd.Stderr = shared

	err := cmd.Run()
	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	return stdout.String(), combined.String(), code, err
}

// Serializes writes from the stdout and stderr copy goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Formats a process for dry-run output.
func formatCommand(p *specs.Process) string {
	if p.Cwd == "" {
		return shellquote.Join(p.Args...)
	}
	return fmt.Sprintf("(cd %s && %s)", shellquote.Join(p.Cwd), shellquote.Join(p.Args...))
}
