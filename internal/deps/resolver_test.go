package deps

import (
	"errors"
	"slices"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Builds a registry from name -> deps pairs. Names prefixed with "!" are
// flagged as runtime dependencies.
func registry(t *testing.T, graph map[string][]string) *recipe.Registry {
	t.Helper()
	reg := recipe.NewRegistry()
	for name, deps := range graph {
		runtime := name[0] == '!'
		if runtime {
			name = name[1:]
		}
		reg.Add(&recipe.Recipe{
			Name:       name,
			Deps:       deps,
			RuntimeDep: runtime,
			Platform:   platforms.MustParse("linux/amd64"),
		})
	}
	return reg
}

// Asserts that every recipe appears exactly once and after all its
// dependencies.
func assertTopological(t *testing.T, order []*recipe.Recipe) {
	t.Helper()
	pos := make(map[string]int)
	for i, r := range order {
		if _, dup := pos[r.Name]; dup {
			t.Fatalf("%s appears twice in %v", r.Name, Names(order))
		}
		pos[r.Name] = i
	}
	for _, r := range order {
		for _, d := range r.ListDeps() {
			if pos[d] >= pos[r.Name] {
				t.Fatalf("%s scheduled before its dependency %s: %v", r.Name, d, Names(order))
			}
		}
	}
}

func TestResolveOrder(t *testing.T) {
	reg := registry(t, map[string][]string{
		"gstreamer": {"glib", "orc"},
		"glib":      {"libffi", "zlib", "pcre"},
		"orc":       {},
		"libffi":    {},
		"zlib":      {},
		"pcre":      {"zlib"},
	})

	order, err := NewResolver(reg).Resolve("gstreamer")
	require.NoError(t, err)
	assertTopological(t, order)
	assert.Equal(t, []string{"libffi", "zlib", "pcre", "glib", "orc", "gstreamer"}, Names(order))
}

func TestResolveIdempotent(t *testing.T) {
	reg := registry(t, map[string][]string{
		"a": {"b", "c"},
		"b": {"c"},
		"c": {},
	})
	r := NewResolver(reg)

	first, err := r.Resolve("a")
	require.NoError(t, err)
	second, err := r.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, Names(first), Names(second))
}

func TestResolveAllDeduplicates(t *testing.T) {
	reg := registry(t, map[string][]string{
		"app1":   {"shared"},
		"app2":   {"shared", "extra"},
		"shared": {},
		"extra":  {},
	})

	order, err := NewResolver(reg).ResolveAll([]string{"app1", "app2"})
	require.NoError(t, err)
	assertTopological(t, order)
	assert.Equal(t, []string{"shared", "app1", "extra", "app2"}, Names(order))
}

func TestRuntimeDepsAreImplicit(t *testing.T) {
	reg := registry(t, map[string][]string{
		"!libc-shim": {"toolchain"},
		"!toolchain": {},
		"app":        {"lib"},
		"lib":        {},
	})

	order, err := NewResolver(reg).Resolve("app")
	require.NoError(t, err)
	names := Names(order)

	assert.Less(t, slices.Index(names, "libc-shim"), slices.Index(names, "app"))
	assert.Less(t, slices.Index(names, "libc-shim"), slices.Index(names, "lib"))

	// Runtime dependencies only depend on what they declare.
	order, err = NewResolver(reg).Resolve("libc-shim")
	require.NoError(t, err)
	assert.Equal(t, []string{"toolchain", "libc-shim"}, Names(order))
}

func TestResolveCycle(t *testing.T) {
	reg := registry(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {"a"},
	})

	order, err := NewResolver(reg).Resolve("d")
	assert.Nil(t, order)

	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycle.Cycle)
	assert.True(t, errdefs.IsFailedPrecondition(err))
}

func TestResolveSelfCycle(t *testing.T) {
	reg := registry(t, map[string][]string{"a": {"a"}})

	_, err := NewResolver(reg).Resolve("a")
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "a"}, cycle.Cycle)
}

func TestResolveUnknownDependency(t *testing.T) {
	reg := registry(t, map[string][]string{"a": {"ghost"}})

	_, err := NewResolver(reg).Resolve("a")
	var unknown *UnknownDependencyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "a", unknown.Recipe)
	assert.Equal(t, "ghost", unknown.Dependency)
}

func TestResolveUnknownRoot(t *testing.T) {
	_, err := NewResolver(recipe.NewRegistry()).Resolve("nope")
	var nf *recipe.RecipeNotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestReverseDeps(t *testing.T) {
	reg := registry(t, map[string][]string{
		"app":  {"lib"},
		"lib":  {"zlib"},
		"tool": {},
		"zlib": {},
	})

	rdeps, err := NewResolver(reg).ReverseDeps("zlib")
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "lib"}, rdeps)
}

func TestDot(t *testing.T) {
	reg := registry(t, map[string][]string{
		"!rt": {},
		"app": {"lib"},
		"lib": {},
	})

	dot, err := NewResolver(reg).Dot([]string{"app"})
	require.NoError(t, err)
	assert.Contains(t, dot, `"app" -> "lib";`)
	assert.Contains(t, dot, `"app" -> "rt" [style=dashed];`)
	assert.NotContains(t, dot, `"rt" -> `)
}
