package recipe

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrLoad        = errors.New("failed to load recipes")
	ErrFingerprint = errors.New("failed to compute recipe fingerprint")
	ErrStepLog     = errors.New("failed to open step log")
)

// Returned when a recipe name is not present in the registry.
type RecipeNotFoundError struct {
	Name string // Requested recipe name.
}

func (e *RecipeNotFoundError) Error() string {
	return fmt.Sprintf("recipe %q not found", e.Name)
}

func (e *RecipeNotFoundError) Unwrap() error {
	return errdefs.ErrNotFound
}
