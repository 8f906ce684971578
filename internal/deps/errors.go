package deps

import (
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// Returned when the dependency graph contains a cycle.
type CycleError struct {
	Cycle []string // Recipes on the cycle, starting and ending with the same name.
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error {
	return errdefs.ErrFailedPrecondition
}

// Returned when a recipe depends on a recipe missing from the registry.
type UnknownDependencyError struct {
	Recipe     string // Recipe declaring the dependency.
	Dependency string // Missing dependency.
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("recipe %q depends on unknown recipe %q", e.Recipe, e.Dependency)
}

func (e *UnknownDependencyError) Unwrap() error {
	return errdefs.ErrNotFound
}
