package shell

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCommandFailed = errors.New("command failed")
	ErrEmptyCommand  = errors.New("empty command")
)

// Returned when a subprocess exits unsuccessfully.
type CommandError struct {
	Args     []string // Command line.
	Dir      string   // Working directory.
	ExitCode int      // Exit code, -1 if the process did not start or was killed.
	Attempts int      // Number of attempts made.
	Err      error    // Underlying error from the process.
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}
