package recipe

import (
	"maps"
	"slices"
)

// Holds the recipes available to a session, keyed by name.
type Registry struct {
	recipes map[string]*Recipe
}

// Creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{recipes: make(map[string]*Recipe)}
}

// Registers recipes, replacing any existing recipe with the same name.
func (reg *Registry) Add(recipes ...*Recipe) {
	for _, r := range recipes {
		reg.recipes[r.Name] = r
	}
}

// Returns the recipe with the given name.
func (reg *Registry) Get(name string) (*Recipe, error) {
	r, ok := reg.recipes[name]
	if !ok {
		return nil, &RecipeNotFoundError{Name: name}
	}
	return r, nil
}

// Whether a recipe with the given name is registered.
func (reg *Registry) Has(name string) bool {
	_, ok := reg.recipes[name]
	return ok
}

// Returns the registered recipe names in lexical order.
func (reg *Registry) Names() []string {
	return slices.Sorted(maps.Keys(reg.recipes))
}

// Returns the registered recipes in name order.
func (reg *Registry) All() []*Recipe {
	names := reg.Names()
	out := make([]*Recipe, len(names))
	for i, n := range names {
		out[i] = reg.recipes[n]
	}
	return out
}

// Returns the names of recipes flagged as runtime dependencies of every
// other recipe, in lexical order.
func (reg *Registry) RuntimeDeps() []string {
	var out []string
	for _, name := range reg.Names() {
		if reg.recipes[name].RuntimeDep {
			out = append(out, name)
		}
	}
	return out
}
