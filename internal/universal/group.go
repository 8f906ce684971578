package universal

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/cruciblehq/kiln/internal/recipe"
)

// Options for a [Group].
type GroupOptions struct {
	Flat   bool    // Merge the instances into Prefix after they are built.
	Prefix string  // Universal install prefix of flat groups.
	Merger *Merger // Merger used by the merge step of flat groups.
}

// One recipe built for several architectures.
//
// A group implements [build.Target]. Its status is tracked under the name of
// the first instance.
type Group struct {
	instances []*recipe.Recipe
	steps     []recipe.Step
	opts      GroupOptions
}

var _ build.Target = (*Group)(nil)

// Creates a group from per-architecture instances of one recipe.
//
// Every instance must share the recipe name, dependencies, platform
// dependencies and step sequence, and no two may target the same
// architecture. Flat groups require a prefix and a
// merger, and get a trailing merge step.
func NewGroup(instances []*recipe.Recipe, opts GroupOptions) (*Group, error) {
	if len(instances) == 0 {
		return nil, errs.Wrapf(ErrInvalidGroup, "no instances")
	}

	first := instances[0]
	archs := make(map[string]bool, len(instances))
	for _, r := range instances {
		if r.Name != first.Name {
			return nil, errs.Wrapf(ErrInvalidGroup, "instance %q does not match %q", r.Name, first.Name)
		}
		if !slices.Equal(r.Deps, first.Deps) {
			return nil, errs.Wrapf(ErrInvalidGroup, "%s: instances have different dependencies", first.Name)
		}
		if !maps.EqualFunc(r.PlatformDeps, first.PlatformDeps, slices.Equal[[]string]) {
			return nil, errs.Wrapf(ErrInvalidGroup, "%s: instances have different platform dependencies", first.Name)
		}
		if !slices.Equal(r.Steps, first.Steps) {
			return nil, errs.Wrapf(ErrInvalidGroup, "%s: instances have different steps", first.Name)
		}
		if archs[r.Arch()] {
			return nil, errs.Wrapf(ErrInvalidGroup, "%s: duplicate architecture %q", first.Name, r.Arch())
		}
		archs[r.Arch()] = true
	}

	steps := slices.Clone(first.Steps)
	if opts.Flat {
		if opts.Prefix == "" || opts.Merger == nil {
			return nil, errs.Wrapf(ErrInvalidGroup, "%s: flat groups need a prefix and a merger", first.Name)
		}
		steps = append(steps, recipe.StepMerge)
	}

	return &Group{
		instances: slices.Clone(instances),
		steps:     steps,
		opts:      opts,
	}, nil
}

func (g *Group) Name() string {
	return g.instances[0].Name
}

func (g *Group) Steps() []recipe.Step {
	return g.steps
}

func (g *Group) Primary() *recipe.Recipe {
	return g.instances[0]
}

// Returns the instance for arch, or the first instance.
func (g *Group) Instance(arch string) *recipe.Recipe {
	for _, r := range g.instances {
		if r.Arch() == arch {
			return r
		}
	}
	return g.instances[0]
}

// Returns the architectures of the instances, in group order.
func (g *Group) Archs() []string {
	archs := make([]string, len(g.instances))
	for i, r := range g.instances {
		archs[i] = r.Arch()
	}
	return archs
}

func (g *Group) BuildDirs() []string {
	dirs := make([]string, 0, len(g.instances))
	for _, r := range g.instances {
		if !slices.Contains(dirs, r.BuildDir) {
			dirs = append(dirs, r.BuildDir)
		}
	}
	return dirs
}

// Runs a step across the instances.
func (g *Group) RunStep(ctx context.Context, step recipe.Step) error {
	switch {
	case step == recipe.StepMerge:
		return g.merge(ctx)
	case step == recipe.StepFetch:
		return runOn(ctx, g.instances[0], step)
	case g.concurrent(step):
		return g.fanOut(ctx, step)
	default:
		for _, r := range g.instances {
			if err := runOn(ctx, r, step); err != nil {
				return err
			}
		}
		return nil
	}
}

// Whether a step runs on every instance at once.
func (g *Group) concurrent(step recipe.Step) bool {
	if step == recipe.StepConfigure {
		return true
	}
	return step == recipe.StepExtract && g.instances[0].Source.Kind == recipe.SourceTarball
}

// Runs a step on every instance concurrently and waits for all of them.
//
// A failing instance does not cancel the others. Failures are joined.
func (g *Group) fanOut(ctx context.Context, step recipe.Step) error {
	failures := make([]error, len(g.instances))

	var wg sync.WaitGroup
	for i, r := range g.instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			failures[i] = runOn(ctx, r, step)
		}()
	}
	wg.Wait()

	return errors.Join(failures...)
}

// Merges the instance prefixes into the universal prefix.
func (g *Group) merge(ctx context.Context) error {
	inputs := make([]Input, len(g.instances))
	for i, r := range g.instances {
		inputs[i] = Input{Arch: r.Arch(), Dir: r.Prefix}
	}

	slog.Info("merging universal build", "recipe", g.Name(), "archs", g.Archs(), "prefix", g.opts.Prefix)
	if err := g.opts.Merger.Merge(ctx, inputs, g.opts.Prefix); err != nil {
		return &build.ArchError{Arch: "universal", Step: recipe.StepMerge, Err: err}
	}
	return nil
}

// Runs a step on one instance, tagging a failure with its architecture.
func runOn(ctx context.Context, r *recipe.Recipe, step recipe.Step) error {
	if err := r.Run(ctx, step); err != nil {
		return &build.ArchError{Arch: r.Arch(), Step: step, Err: err}
	}
	return nil
}
