package universal

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/containerd/errdefs"
)

var (
	ErrInvalidGroup = fmt.Errorf("invalid universal group: %w", errdefs.ErrInvalidArgument)
	ErrMerge        = errors.New("universal merge failed")
	ErrArchive      = errors.New("malformed archive")
)

// Returned when the copies of a path have different content types.
type TypeMismatchError struct {
	Path    string                 // Path relative to the prefixes.
	Actions map[string]MergeAction // Detected action per architecture.
}

func (e *TypeMismatchError) Error() string {
	archs := slices.Sorted(maps.Keys(e.Actions))
	parts := make([]string, len(archs))
	for i, arch := range archs {
		parts[i] = arch + "=" + e.Actions[arch].String()
	}
	return fmt.Sprintf("%s has mismatched types across architectures (%s)", e.Path, strings.Join(parts, ", "))
}

func (e *TypeMismatchError) Unwrap() []error {
	return []error{ErrMerge, errdefs.ErrFailedPrecondition}
}
