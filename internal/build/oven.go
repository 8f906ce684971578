package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/cruciblehq/kiln/internal/cache"
	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/cruciblehq/kiln/internal/recipe"
)

// Options for an [Oven].
type Options struct {
	Force       bool          // Rebuild every step of every target.
	ForceSteps  []recipe.Step // Steps to run even when recorded as done.
	DryRun      bool          // Do not record progress in the status cache.
	Interactive bool          // Prompt for a recovery action on failure.
	Prompter    Prompter      // Recovery menu. Required when Interactive is set.
	Shell       ShellOpener   // Opens the recovery shell.
	Out         io.Writer     // Progress output. Defaults to io.Discard.
}

// Outcome of a session.
type Summary struct {
	Built    []string // Targets whose steps ran.
	UpToDate []string // Targets that needed no work.
	Skipped  []string // Targets skipped from the recovery menu.
}

// Builds targets in order, one step at a time.
//
// The oven is not safe for concurrent use. The status cache is only touched
// from the goroutine calling [Oven.Cook].
type Oven struct {
	cache       *cache.Cache
	opts        Options
	progress    *progress
	staticBuilt map[string]bool // Static libraries rebuilt during the session.
}

// Creates an oven recording progress in c.
func NewOven(c *cache.Cache, opts Options) *Oven {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Oven{
		cache:       c,
		opts:        opts,
		progress:    newProgress(opts.Out),
		staticBuilt: make(map[string]bool),
	}
}

// Builds every target in order.
//
// The first unrecovered failure stops the session and is returned together
// with the summary of the targets processed so far.
func (o *Oven) Cook(ctx context.Context, targets []Target) (*Summary, error) {
	summary := &Summary{}
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := o.cookWithRecovery(ctx, t, i+1, len(targets), summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// Builds one target, consulting the prompter after each failure.
func (o *Oven) cookWithRecovery(ctx context.Context, t Target, current, total int, summary *Summary) error {
	o.propagateStatic(t.Primary())
	for {
		built, err := o.cookTarget(ctx, t, current, total)
		if err == nil {
			if built {
				summary.Built = append(summary.Built, t.Name())
			} else {
				summary.UpToDate = append(summary.UpToDate, t.Name())
			}
			return nil
		}

		var stepErr *BuildStepError
		if ctx.Err() != nil || !errors.As(err, &stepErr) {
			return err
		}

		o.progress.failure(stepErr)
		if !o.opts.Interactive || o.opts.Prompter == nil {
			return err
		}

		action, perr := o.opts.Prompter.Choose(ctx, stepErr.Error(), RecoveryActions)
		if perr != nil {
			return errors.Join(err, perr)
		}
		slog.Debug("recovery action", "recipe", t.Name(), "action", action.String())

		switch action {
		case RecoveryShell:
			if serr := o.openShell(ctx, t, stepErr.Arch); serr != nil {
				slog.Warn("recovery shell failed", "recipe", t.Name(), "error", serr)
			}
			return err
		case RecoveryRetryAll:
			if werr := o.wipe(t); werr != nil {
				return werr
			}
			o.cache.Reset(t.Name())
		case RecoveryRetryStep:
		case RecoverySkip:
			summary.Skipped = append(summary.Skipped, t.Name())
			return nil
		default:
			return &AbortedError{Recipe: t.Name()}
		}
	}
}

// Runs the pending steps of a target.
//
// Returns false if the target was already built and nothing ran.
func (o *Oven) cookTarget(ctx context.Context, t Target, current, total int) (bool, error) {
	primary := t.Primary()

	forced := o.forcedSteps(t)
	if !o.opts.Force && len(forced) == 0 && !o.cache.NeedsBuild(primary) {
		o.progress.upToDate(current, total, t.Name())
		return false, nil
	}

	for _, step := range t.Steps() {
		if !o.opts.Force && !slices.Contains(forced, step) && o.cache.StepDone(primary, step) {
			o.progress.alreadyDone(current, total, t.Name(), step)
			continue
		}

		o.progress.step(current, total, t.Name(), step)
		if err := o.runStep(ctx, t, step); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if step.IsSource() {
				if werr := o.wipe(t); werr != nil {
					slog.Warn("failed to clean build directory", "recipe", t.Name(), "error", werr)
				}
				o.cache.Reset(t.Name())
			}
			return false, o.stepError(t, step, err)
		}

		if !o.opts.DryRun {
			o.cache.RecordStep(primary, step)
		}
	}

	if !o.opts.DryRun {
		o.cache.RecordBuild(primary, primary.BuiltVersion())
	}
	if primary.LibraryType == recipe.LibraryStatic {
		o.staticBuilt[primary.Name] = true
	}
	return true, nil
}

// Runs a step, converting a panic into an unexpected failure.
func (o *Oven) runStep(ctx context.Context, t Target, step recipe.Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return t.RunStep(ctx, step)
}

// Builds the error reported for a failed step.
func (o *Oven) stepError(t Target, step recipe.Step, err error) *BuildStepError {
	arch := t.Primary().Arch()
	var archErr *ArchError
	if errors.As(err, &archErr) {
		arch = archErr.Arch
	}

	var pe *panicError
	return &BuildStepError{
		Recipe:     t.Name(),
		Step:       step,
		Arch:       arch,
		Log:        t.Instance(arch).Logs(step),
		Unexpected: errors.As(err, &pe),
		Err:        err,
	}
}

// Resets a recipe that links against a static library rebuilt earlier in
// the session.
func (o *Oven) propagateStatic(r *recipe.Recipe) {
	if r.LibraryType == recipe.LibraryStatic || len(o.staticBuilt) == 0 {
		return
	}
	for _, dep := range r.ListDeps() {
		if o.staticBuilt[dep] {
			slog.Info("static dependency rebuilt, rebuilding", "recipe", r.Name, "dependency", dep)
			o.cache.Reset(r.Name)
			return
		}
	}
}

// Returns the forced steps the target actually has.
func (o *Oven) forcedSteps(t Target) []recipe.Step {
	var out []recipe.Step
	for _, step := range o.opts.ForceSteps {
		if slices.Contains(t.Steps(), step) {
			out = append(out, step)
		}
	}
	return out
}

// Removes the build directories of a target.
func (o *Oven) wipe(t Target) error {
	if o.opts.DryRun {
		return nil
	}
	for _, dir := range t.BuildDirs() {
		if dir == "" {
			continue
		}
		slog.Debug("removing build directory", "recipe", t.Name(), "path", dir)
		if err := os.RemoveAll(dir); err != nil {
			return errs.Wrap(ErrFileSystemOperation, err)
		}
	}
	return nil
}

// Opens the recovery shell in the build environment of the failed instance.
func (o *Oven) openShell(ctx context.Context, t Target, arch string) error {
	if o.opts.Shell == nil {
		return nil
	}

	r := t.Instance(arch)
	if r.Env == nil {
		return o.opts.Shell.Interactive(ctx, r.BuildDir, os.Environ())
	}

	scope, err := r.Env.Enter()
	if err != nil {
		return err
	}
	defer scope.Exit()

	return o.opts.Shell.Interactive(ctx, r.BuildDir, scope.Environ())
}

// A panic raised by a step action.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
