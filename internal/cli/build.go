package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/prompt"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/cruciblehq/kiln/internal/session"
)

// Represents the 'kiln build' command.
type BuildCmd struct {
	Recipes        []string `arg:"" optional:"" help:"Recipes to build. Defaults to the configured recipe list."`
	Force          bool     `short:"f" help:"Rebuild every step, even when up to date."`
	NoDeps         bool     `help:"Build only the named recipes." xor:"deps"`
	DepsOnly       bool     `help:"Build only the dependencies of the named recipes." xor:"deps"`
	DryRun         bool     `short:"n" help:"Print the commands instead of running them."`
	Jobs           int      `short:"j" help:"Maximum concurrent jobs. Defaults to the configured value."`
	Steps          []string `name:"step" short:"s" help:"Rerun a step even if it is done. Repeatable." placeholder:"STEP"`
	Interactive    bool     `help:"Prompt for a recovery action when a step fails." xor:"interactive"`
	NonInteractive bool     `name:"no-interactive" help:"Fail immediately when a step fails." xor:"interactive"`
}

// Executes the build command.
//
// The build status is saved even when the build fails, so a later run
// resumes after the last completed step.
func (c *BuildCmd) Run(ctx context.Context) (err error) {
	s, err := openSession(session.Options{
		DryRun: c.DryRun,
		Jobs:   c.Jobs,
		Out:    os.Stdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	steps := make([]recipe.Step, len(c.Steps))
	for i, name := range c.Steps {
		steps[i] = recipe.Step(name)
	}

	summary, err := s.Build(ctx, c.Recipes, session.BuildOptions{
		Plan:        session.PlanOptions{NoDeps: c.NoDeps, DepsOnly: c.DepsOnly},
		Force:       c.Force,
		Steps:       steps,
		Interactive: c.interactive(s),
		Prompter:    prompt.New(),
	})
	if err != nil {
		return err
	}

	if !internal.IsQuiet() {
		fmt.Printf("%d built, %d up to date, %d skipped\n", len(summary.Built), len(summary.UpToDate), len(summary.Skipped))
	}
	if len(summary.Skipped) > 0 {
		slog.Warn("recipes skipped", "recipes", summary.Skipped)
	}
	return nil
}

// Whether failures prompt for recovery.
//
// The flags take precedence over the configuration, which takes precedence
// over the build default. Prompting always needs a terminal.
func (c *BuildCmd) interactive(s *session.Session) bool {
	if !isatty(os.Stdin) || c.DryRun {
		return false
	}
	switch {
	case c.Interactive:
		return true
	case c.NonInteractive:
		return false
	}
	return s.Config().IsInteractive(internal.IsInteractive())
}
