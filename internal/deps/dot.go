package deps

import (
	"fmt"
	"slices"
	"strings"
)

// Renders the dependency graph of names as a Graphviz digraph.
//
// Only recipes reachable from names are included. Implicit runtime
// dependencies are drawn dashed.
func (r *Resolver) Dot(names []string) (string, error) {
	order, err := r.ResolveAll(names)
	if err != nil {
		return "", err
	}

	w := r.newWalk()
	var b strings.Builder
	b.WriteString("digraph deps {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, rec := range order {
		fmt.Fprintf(&b, "  %q;\n", rec.Name)
	}
	for _, rec := range order {
		declared := rec.ListDeps()
		for _, dep := range w.depsOf(rec) {
			style := ""
			if !slices.Contains(declared, dep) {
				style = " [style=dashed]"
			}
			fmt.Fprintf(&b, "  %q -> %q%s;\n", rec.Name, dep, style)
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}
