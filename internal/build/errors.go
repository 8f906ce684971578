package build

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal/recipe"
)

var (
	ErrBuild               = fmt.Errorf("build failed: %w", errdefs.ErrUnknown)
	ErrFileSystemOperation = errors.New("file system operation failed")
	ErrUnexpected          = errors.New("unexpected error")
)

// Failure of a step on one architecture instance.
type ArchError struct {
	Arch string      // Architecture of the failing instance.
	Step recipe.Step // Failing step.
	Err  error       // Underlying failure.
}

func (e *ArchError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Step, e.Arch, e.Err)
}

func (e *ArchError) Unwrap() error {
	return e.Err
}

// Returned when a build step fails.
type BuildStepError struct {
	Recipe     string      // Recipe name.
	Step       recipe.Step // Failing step.
	Arch       string      // Architecture of the failing instance.
	Log        string      // Logs of the failing step and the steps before it.
	Unexpected bool        // Whether the step panicked instead of returning an error.
	Err        error       // Underlying failure.
}

func (e *BuildStepError) Error() string {
	kind := "failed"
	if e.Unexpected {
		kind = "failed unexpectedly"
	}
	return fmt.Sprintf("recipe %q step %q %s on %s: %v", e.Recipe, e.Step, kind, e.Arch, e.Err)
}

func (e *BuildStepError) Unwrap() []error {
	return []error{ErrBuild, e.Err}
}

// Returned when the user aborts the session from the recovery menu.
type AbortedError struct {
	Recipe string // Recipe being built when the session was aborted.
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("build aborted at recipe %q", e.Recipe)
}

func (e *AbortedError) Unwrap() error {
	return errdefs.ErrAborted
}
