package config

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrRead  = errors.New("failed to read configuration")
	ErrParse = fmt.Errorf("failed to parse configuration: %w", errdefs.ErrInvalidArgument)
)

// Returned when a configuration value is invalid.
type ConfigurationError struct {
	Field  string // Offending field.
	Reason string // What is wrong with it.
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return errdefs.ErrInvalidArgument
}
