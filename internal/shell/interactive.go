package shell

import (
	"context"
	"os"
	"os/exec"
)

// Opens an interactive shell in dir with the given environment.
//
// The user's $SHELL is preferred over the runner's script shell. Standard
// streams are attached to the terminal. The shell's exit status is ignored.
func (r *Runner) Interactive(ctx context.Context, dir string, env []string) error {
	sh := os.Getenv("SHELL")
	if sh == "" {
		sh = r.shell
	}

	p := r.buildProcessSpec(env, dir, sh)
	p.Terminal = true

	cmd := exec.CommandContext(ctx, p.Args[0])
	cmd.Dir = p.Cwd
	cmd.Env = p.Env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return err
	}
	return nil
}
