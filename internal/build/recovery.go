package build

import "context"

// Action offered to the user after a build step fails.
type RecoveryAction int

const (
	RecoveryShell     RecoveryAction = iota // Open a shell in the build environment.
	RecoveryRetryAll                        // Wipe the build directory and rebuild from scratch.
	RecoveryRetryStep                       // Run the failed step again.
	RecoverySkip                            // Leave the recipe unbuilt and continue.
	RecoveryAbort                           // Stop the session.
)

// Recovery actions in menu order.
var RecoveryActions = []RecoveryAction{
	RecoveryShell,
	RecoveryRetryAll,
	RecoveryRetryStep,
	RecoverySkip,
	RecoveryAbort,
}

// Returns the menu label of the action.
func (a RecoveryAction) String() string {
	switch a {
	case RecoveryShell:
		return "Enter the shell"
	case RecoveryRetryAll:
		return "Rebuild the recipe from scratch"
	case RecoveryRetryStep:
		return "Rebuild starting from the failed step"
	case RecoverySkip:
		return "Skip recipe"
	case RecoveryAbort:
		return "Abort"
	default:
		return "unknown"
	}
}

// Asks the user how to recover from a failed step.
type Prompter interface {

	// Presents message and returns the chosen action.
	Choose(ctx context.Context, message string, actions []RecoveryAction) (RecoveryAction, error)
}

// Opens an interactive shell.
type ShellOpener interface {

	// Runs a shell in dir with env until the user exits it.
	Interactive(ctx context.Context, dir string, env []string) error
}
