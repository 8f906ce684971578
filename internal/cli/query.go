package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cruciblehq/kiln/internal/fsutil"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/session"
)

// Represents the 'kiln deps' command.
type DepsCmd struct {
	Recipe string `arg:"" help:"Recipe to inspect."`
	All    bool   `short:"a" help:"Include transitive dependencies, in build order."`
}

// Executes the deps command.
func (c *DepsCmd) Run(ctx context.Context) error {
	s, err := openSession(session.Options{})
	if err != nil {
		return err
	}
	names, err := s.Deps(c.Recipe, c.All)
	if err != nil {
		return err
	}
	printLines(os.Stdout, names)
	return nil
}

// Represents the 'kiln rdeps' command.
type RdepsCmd struct {
	Recipe string `arg:"" help:"Recipe to inspect."`
}

// Executes the rdeps command.
func (c *RdepsCmd) Run(ctx context.Context) error {
	s, err := openSession(session.Options{})
	if err != nil {
		return err
	}
	names, err := s.ReverseDeps(c.Recipe)
	if err != nil {
		return err
	}
	printLines(os.Stdout, names)
	return nil
}

// Represents the 'kiln graph' command.
type GraphCmd struct {
	Recipes []string `arg:"" optional:"" help:"Roots of the graph. Defaults to every recipe."`
	Output  string   `short:"o" help:"Write the graph to a file instead of standard output." type:"path" placeholder:"FILE"`
}

// Executes the graph command.
func (c *GraphCmd) Run(ctx context.Context) error {
	s, err := openSession(session.Options{})
	if err != nil {
		return err
	}
	dot, err := s.Graph(c.Recipes)
	if err != nil {
		return err
	}
	if c.Output == "" {
		_, err = io.WriteString(os.Stdout, dot)
		return err
	}
	return fsutil.WriteFile(c.Output, []byte(dot), paths.DefaultFileMode)
}

// Represents the 'kiln cache' command.
type CacheCmd struct {
	Recipes []string `arg:"" optional:"" help:"Recipes to show or change. Defaults to every stored recipe."`
	Reset   bool     `help:"Discard the stored status, forcing a rebuild." xor:"change"`
	Touch   bool     `help:"Accept the current recipe definitions as built." xor:"change"`
}

// Executes the cache command.
//
// Without --reset or --touch the stored status is printed.
func (c *CacheCmd) Run(ctx context.Context) error {
	s, err := openSession(session.Options{})
	if err != nil {
		return err
	}

	switch {
	case c.Reset:
		s.Reset(c.names(s))
		return s.Close()
	case c.Touch:
		if err := s.Touch(c.names(s)); err != nil {
			return err
		}
		return s.Close()
	}

	entries, err := s.Status(c.Recipes)
	if err != nil {
		return err
	}
	return printStatus(os.Stdout, entries)
}

// Returns the recipes to change, every stored one by default.
func (c *CacheCmd) names(s *session.Session) []string {
	if len(c.Recipes) > 0 {
		return c.Recipes
	}
	return s.Cache().Names()
}

// Represents the 'kiln list' command.
type ListCmd struct{}

// Executes the list command.
func (c *ListCmd) Run(ctx context.Context) error {
	s, err := openSession(session.Options{})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, r := range s.Registry().All() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Version, strings.Join(r.ListDeps(), " "))
	}
	return w.Flush()
}

// Prints the build status of entries as a table.
func printStatus(out io.Writer, entries []session.Entry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECIPE\tVERSION\tNEEDS BUILD\tSTEPS")
	for _, e := range entries {
		steps := make([]string, len(e.Status.Steps))
		for i, step := range e.Status.Steps {
			steps[i] = string(step)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", e.Name, e.Status.BuiltVersion, e.Status.NeedsBuild, strings.Join(steps, ","))
	}
	return w.Flush()
}

func printLines(out io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
}
