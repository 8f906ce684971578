package deps

import (
	"slices"

	"github.com/cruciblehq/kiln/internal/recipe"
)

// Traversal state of a node.
type mark int

const (
	unvisited mark = iota
	inProgress
	done
)

// Source of recipes for resolution.
type Registry interface {
	Get(name string) (*recipe.Recipe, error)
	Has(name string) bool
	Names() []string
	RuntimeDeps() []string
}

// Resolves build orders over a registry.
//
// A resolver does not modify the registry. It is not safe for concurrent
// use.
type Resolver struct {
	reg Registry
}

// Creates a resolver over reg.
func NewResolver(reg Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Per-call traversal state.
type walk struct {
	reg     Registry
	runtime []string
	marks   map[string]mark
	stack   []string
	order   []*recipe.Recipe
}

func (r *Resolver) newWalk() *walk {
	return &walk{
		reg:     r.reg,
		runtime: r.reg.RuntimeDeps(),
		marks:   make(map[string]mark),
	}
}

// Returns the recipes required to build name, dependencies first and name
// last.
func (r *Resolver) Resolve(name string) ([]*recipe.Recipe, error) {
	return r.ResolveAll([]string{name})
}

// Returns the recipes required to build every name, in build order and
// without duplicates.
//
// The order for each name is appended after the recipes already scheduled
// for earlier names.
func (r *Resolver) ResolveAll(names []string) ([]*recipe.Recipe, error) {
	w := r.newWalk()
	for _, name := range names {
		if !w.reg.Has(name) {
			return nil, &recipe.RecipeNotFoundError{Name: name}
		}
		if err := w.visit(name); err != nil {
			return nil, err
		}
	}
	return w.order, nil
}

// Returns the direct dependencies of a recipe, with runtime dependencies
// prepended unless the recipe is one itself.
func (w *walk) depsOf(rec *recipe.Recipe) []string {
	declared := rec.ListDeps()
	if rec.RuntimeDep {
		return declared
	}

	out := make([]string, 0, len(w.runtime)+len(declared))
	for _, d := range w.runtime {
		if d != rec.Name {
			out = append(out, d)
		}
	}
	for _, d := range declared {
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

// Visits a node depth first.
func (w *walk) visit(name string) error {
	switch w.marks[name] {
	case done:
		return nil
	case inProgress:
		start := slices.Index(w.stack, name)
		cycle := append(slices.Clone(w.stack[start:]), name)
		return &CycleError{Cycle: cycle}
	}

	rec, err := w.reg.Get(name)
	if err != nil {
		return err
	}

	w.marks[name] = inProgress
	w.stack = append(w.stack, name)

	for _, dep := range w.depsOf(rec) {
		if !w.reg.Has(dep) {
			return &UnknownDependencyError{Recipe: name, Dependency: dep}
		}
		if err := w.visit(dep); err != nil {
			return err
		}
	}

	w.stack = w.stack[:len(w.stack)-1]
	w.marks[name] = done
	w.order = append(w.order, rec)
	return nil
}

// Returns the names of recipes whose transitive dependencies include name,
// in lexical order.
func (r *Resolver) ReverseDeps(name string) ([]string, error) {
	if !r.reg.Has(name) {
		return nil, &recipe.RecipeNotFoundError{Name: name}
	}

	var out []string
	for _, candidate := range r.reg.Names() {
		if candidate == name {
			continue
		}
		order, err := r.Resolve(candidate)
		if err != nil {
			return nil, err
		}
		if slices.ContainsFunc(order, func(rec *recipe.Recipe) bool { return rec.Name == name }) {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// Returns the names of a build order.
func Names(order []*recipe.Recipe) []string {
	out := make([]string, len(order))
	for i, rec := range order {
		out[i] = rec.Name
	}
	return out
}
