package cli

import (
	"context"
	"errors"

	"github.com/containerd/errdefs"
)

// Process exit statuses.
const (
	ExitOK           = 0
	ExitFailure      = 1   // Build failures and unclassified errors.
	ExitUsage        = 2   // Invalid arguments or configuration.
	ExitNotFound     = 3   // Unknown recipes.
	ExitPrecondition = 4   // Dependency cycles and unmergeable outputs.
	ExitAborted      = 5   // Build aborted from the recovery menu.
	ExitInterrupted  = 130 // Interrupted by a signal.
)

// Returns the exit status for the error returned by [Execute].
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errdefs.IsAborted(err):
		return ExitAborted
	case errdefs.IsInvalidArgument(err):
		return ExitUsage
	case errdefs.IsNotFound(err):
		return ExitNotFound
	case errdefs.IsFailedPrecondition(err):
		return ExitPrecondition
	}
	return ExitFailure
}
