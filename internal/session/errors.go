package session

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrNoRecipes  = fmt.Errorf("no recipes to build: %w", errdefs.ErrInvalidArgument)
	ErrConflict   = fmt.Errorf("conflicting options: %w", errdefs.ErrInvalidArgument)
	ErrLoad       = errors.New("failed to load recipes")
	ErrIncomplete = fmt.Errorf("recipe missing for some architectures: %w", errdefs.ErrNotFound)
)
