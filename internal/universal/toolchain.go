package universal

import (
	"context"
	"io"
)

// Binary tools used by the merge.
type Toolchain interface {

	// Fat-combines thin inputs into output.
	Combine(ctx context.Context, output string, inputs []string) error

	// Rewrites a dynamic library load path recorded in file.
	ChangeLoadPath(ctx context.Context, file, from, to string) error

	// Regenerates the symbol index of a static archive.
	Index(ctx context.Context, archive string) error
}

// Runs external commands.
type CommandRunner interface {
	Command(ctx context.Context, dir string, env []string, log io.Writer, args ...string) error
}

// Toolchain backed by the Apple command-line tools.
type appleToolchain struct {
	runner CommandRunner
	log    io.Writer
}

// Returns a toolchain that invokes lipo, install_name_tool, and ranlib
// through runner, writing their output to log.
func NewToolchain(runner CommandRunner, log io.Writer) Toolchain {
	if log == nil {
		log = io.Discard
	}
	return &appleToolchain{runner: runner, log: log}
}

func (t *appleToolchain) Combine(ctx context.Context, output string, inputs []string) error {
	args := append([]string{"lipo", "-create", "-output", output}, inputs...)
	return t.runner.Command(ctx, "", nil, t.log, args...)
}

func (t *appleToolchain) ChangeLoadPath(ctx context.Context, file, from, to string) error {
	return t.runner.Command(ctx, "", nil, t.log, "install_name_tool", "-change", from, to, file)
}

func (t *appleToolchain) Index(ctx context.Context, archive string) error {
	return t.runner.Command(ctx, "", nil, t.log, "ranlib", archive)
}
