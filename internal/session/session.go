package session

import (
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/cache"
	"github.com/cruciblehq/kiln/internal/config"
	"github.com/cruciblehq/kiln/internal/deps"
	"github.com/cruciblehq/kiln/internal/env"
	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/cruciblehq/kiln/internal/fetch"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/cruciblehq/kiln/internal/shell"
	"github.com/cruciblehq/kiln/internal/universal"
	"github.com/google/uuid"
)

// Options for [Open].
type Options struct {
	DryRun  bool      // Print commands instead of running them.
	Jobs    int       // Overrides the configured job count when positive.
	Out     io.Writer // Progress and dry-run output. Defaults to standard output.
	Environ []string  // Base environment. Defaults to the process environment.
}

// How recipe names expand into a build order.
type PlanOptions struct {
	NoDeps   bool // Build only the named recipes.
	DepsOnly bool // Build only the dependencies of the named recipes.
}

// Options for [Session.Build].
type BuildOptions struct {
	Plan        PlanOptions
	Force       bool           // Rebuild every step.
	Steps       []recipe.Step  // Steps to rerun even when done.
	Interactive bool           // Prompt for recovery on failures.
	Prompter    build.Prompter // Recovery menu.
}

// A build session over one configuration.
type Session struct {
	ID         string
	cfg        *config.Config
	log        *slog.Logger
	out        io.Writer
	runner     *shell.Runner
	cache      *cache.Cache
	archs      []string
	registries []*recipe.Registry // One per architecture, in build order.
	resolver   *deps.Resolver     // Resolves over the first architecture's registry.
	merger     *universal.Merger
}

// Loads the recipes and build status of a configuration.
func Open(cfg *config.Config, opts Options) (*Session, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}

	id := uuid.NewString()
	log := slog.With("session", id)
	jobs := cmp.Or(max(opts.Jobs, 0), cfg.Jobs)

	runner := shell.NewRunner(shell.Options{
		Jobs:   jobs,
		DryRun: opts.DryRun,
		Out:    opts.Out,
	})

	s := &Session{
		ID:     id,
		cfg:    cfg,
		log:    log,
		out:    opts.Out,
		runner: runner,
		archs:  cfg.Architectures(),
		merger: universal.NewMerger(universal.NewToolchain(runner, opts.Out), jobs),
	}

	loader := recipe.NewLoader(runner, &fetch.Guard{})
	base := env.FromEnviron(opts.Environ)
	for _, arch := range s.archs {
		target, err := cfg.TargetFor(arch, base)
		if err != nil {
			return nil, err
		}
		reg, err := loader.Load(cfg.LoaderDirs(), target)
		if err != nil {
			return nil, errs.Wrap(ErrLoad, err)
		}
		s.registries = append(s.registries, reg)
	}
	s.resolver = deps.NewResolver(s.registries[0])

	if opts.DryRun {
		s.cache = cache.New()
	} else {
		s.cache = cache.Open(cfg.CacheFile)
	}

	log.Info("session opened",
		"config", cfg.Name,
		"platform", cfg.Platform,
		"archs", s.archs,
		"recipes", len(s.registries[0].Names()),
	)
	return s, nil
}

// Returns the configuration of the session.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Returns the status cache of the session.
func (s *Session) Cache() *cache.Cache {
	return s.cache
}

// Returns the recipe registry of the first architecture.
func (s *Session) Registry() *recipe.Registry {
	return s.registries[0]
}

// Expands recipe names into the names to build, in build order.
//
// No names selects the configuration's default recipes.
func (s *Session) Plan(names []string, opts PlanOptions) ([]string, error) {
	if opts.NoDeps && opts.DepsOnly {
		return nil, errs.Wrapf(ErrConflict, "no-deps and deps-only")
	}
	if len(names) == 0 {
		names = s.cfg.DefaultRecipes()
	}
	if len(names) == 0 {
		return nil, ErrNoRecipes
	}

	if opts.NoDeps {
		var out []string
		for _, name := range names {
			if !s.Registry().Has(name) {
				return nil, &recipe.RecipeNotFoundError{Name: name}
			}
			if !slices.Contains(out, name) {
				out = append(out, name)
			}
		}
		return out, nil
	}

	order, err := s.resolver.ResolveAll(names)
	if err != nil {
		// Recipes on a cycle can never be built as recorded.
		var cycle *deps.CycleError
		if errors.As(err, &cycle) {
			for _, name := range cycle.Cycle {
				s.cache.Reset(name)
			}
		}
		return nil, err
	}
	out := deps.Names(order)
	if opts.DepsOnly {
		out = slices.DeleteFunc(out, func(n string) bool { return slices.Contains(names, n) })
	}
	return out, nil
}

// Returns the build targets of names, in the given order.
func (s *Session) Targets(names []string) ([]build.Target, error) {
	targets := make([]build.Target, 0, len(names))
	for _, name := range names {
		t, err := s.target(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// Returns the build target of one recipe.
func (s *Session) target(name string) (build.Target, error) {
	instances := make([]*recipe.Recipe, 0, len(s.registries))
	for i, reg := range s.registries {
		r, err := reg.Get(name)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			return nil, errs.Wrapf(ErrIncomplete, "%s on %s", name, s.archs[i])
		}
		instances = append(instances, r)
	}

	if !s.cfg.Universal() {
		return build.Single(instances[0]), nil
	}
	return universal.NewGroup(instances, universal.GroupOptions{
		Flat:   s.cfg.Flat,
		Prefix: s.cfg.Prefix,
		Merger: s.merger,
	})
}

// Builds names and their dependencies.
func (s *Session) Build(ctx context.Context, names []string, opts BuildOptions) (*build.Summary, error) {
	order, err := s.Plan(names, opts.Plan)
	if err != nil {
		return nil, err
	}
	targets, err := s.Targets(order)
	if err != nil {
		return nil, err
	}

	s.log.Info("building", "recipes", len(targets), "dry-run", s.runner.DryRun())

	oven := build.NewOven(s.cache, build.Options{
		Force:       opts.Force,
		ForceSteps:  opts.Steps,
		DryRun:      s.runner.DryRun(),
		Interactive: opts.Interactive,
		Prompter:    opts.Prompter,
		Shell:       s.runner,
		Out:         s.out,
	})

	summary, err := oven.Cook(ctx, targets)
	if err != nil {
		return summary, err
	}

	s.log.Info("build finished",
		"built", len(summary.Built),
		"up-to-date", len(summary.UpToDate),
		"skipped", len(summary.Skipped),
	)
	return summary, nil
}

// Returns the dependencies of a recipe in build order, without the recipe
// itself. Unless all is set only the direct dependencies are returned.
func (s *Session) Deps(name string, all bool) ([]string, error) {
	r, err := s.Registry().Get(name)
	if err != nil {
		return nil, err
	}
	if !all {
		return r.ListDeps(), nil
	}

	order, err := s.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	out := deps.Names(order)
	return out[:len(out)-1], nil
}

// Returns the recipes depending on name, directly or transitively.
func (s *Session) ReverseDeps(name string) ([]string, error) {
	return s.resolver.ReverseDeps(name)
}

// Returns the dependency graph of names in Graphviz format.
func (s *Session) Graph(names []string) (string, error) {
	if len(names) == 0 {
		names = s.Registry().Names()
	}
	return s.resolver.Dot(names)
}

// Build status of one recipe.
type Entry struct {
	Name   string
	Status *cache.Status
}

// Returns the status of names, or of every recipe with a stored status.
func (s *Session) Status(names []string) ([]Entry, error) {
	if len(names) == 0 {
		names = s.cache.Names()
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		if r, err := s.Registry().Get(name); err == nil {
			entries = append(entries, Entry{Name: name, Status: s.cache.Get(r)})
			continue
		}
		st, ok := s.cache.Lookup(name)
		if !ok {
			return nil, &recipe.RecipeNotFoundError{Name: name}
		}
		entries = append(entries, Entry{Name: name, Status: st})
	}
	return entries, nil
}

// Discards the stored status of names.
func (s *Session) Reset(names []string) {
	for _, name := range names {
		s.cache.Reset(name)
	}
}

// Accepts the current definitions of names as built.
func (s *Session) Touch(names []string) error {
	for _, name := range names {
		r, err := s.Registry().Get(name)
		if err != nil {
			return err
		}
		if err := s.cache.Touch(r); err != nil {
			return err
		}
	}
	return nil
}

// Writes the status cache. Dry-run sessions write nothing.
func (s *Session) Close() error {
	if s.runner.DryRun() {
		return nil
	}
	return s.cache.Save()
}
