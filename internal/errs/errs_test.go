package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func TestWrapMatchesBoth(t *testing.T) {
	err := Wrap(errSentinel, fs.ErrNotExist)
	if !errors.Is(err, errSentinel) {
		t.Fatal("wrapped error does not match sentinel")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("wrapped error does not match cause")
	}
	if got := err.Error(); got != "sentinel: file does not exist" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(errSentinel, nil) != nil {
		t.Fatal("Wrap(nil) returned non-nil")
	}
}

func TestWrapfKeepsInner(t *testing.T) {
	err := Wrapf(errSentinel, "step %s: %w", "compile", fs.ErrPermission)
	if !errors.Is(err, fs.ErrPermission) || !errors.Is(err, errSentinel) {
		t.Fatalf("Wrapf lost a link in the chain: %v", err)
	}
	if !strings.Contains(fmt.Sprintf("%+v", err), "errs_test.go") {
		t.Fatalf("stack trace missing from %%+v output")
	}
}
