package env

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	ErrReentrantScope = fmt.Errorf("environment scope already active: %w", errdefs.ErrFailedPrecondition)
	ErrUnknownOp      = errors.New("unknown environment operation")
)
