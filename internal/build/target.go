package build

import (
	"context"

	"github.com/cruciblehq/kiln/internal/recipe"
)

// Something the oven can build: a single recipe or a group of
// per-architecture instances of one recipe.
type Target interface {

	// Returns the recipe name.
	Name() string

	// Returns the ordered steps.
	Steps() []recipe.Step

	// Returns the recipe whose status the cache tracks.
	Primary() *recipe.Recipe

	// Returns the recipe instance for an architecture, or the primary
	// instance if arch is unknown.
	Instance(arch string) *recipe.Recipe

	// Returns the build directories of every instance.
	BuildDirs() []string

	// Runs one step on every instance. Failures are reported as
	// [ArchError] values, joined when several instances fail.
	RunStep(ctx context.Context, step recipe.Step) error
}

// A target wrapping a single recipe.
type single struct {
	r *recipe.Recipe
}

// Returns a target that builds r.
func Single(r *recipe.Recipe) Target {
	return &single{r: r}
}

func (s *single) Name() string { return s.r.Name }
func (s *single) Steps() []recipe.Step { return s.r.Steps }
func (s *single) Primary() *recipe.Recipe { return s.r }
func (s *single) Instance(string) *recipe.Recipe { return s.r }
func (s *single) BuildDirs() []string { return []string{s.r.BuildDir} }

func (s *single) RunStep(ctx context.Context, step recipe.Step) error {
	if err := s.r.Run(ctx, step); err != nil {
		return &ArchError{Arch: s.r.Arch(), Step: step, Err: err}
	}
	return nil
}
