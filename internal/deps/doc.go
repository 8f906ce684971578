// Package deps linearizes recipe dependencies into a build order.
//
// A [Resolver] walks the dependency graph of a recipe registry depth first
// with three-state marking. Every recipe that is not itself a runtime
// dependency implicitly depends on all recipes flagged as runtime
// dependencies. The resulting order lists dependencies before dependents,
// without duplicates. A cycle fails with a [CycleError] naming the cycle, and
// a dependency missing from the registry fails with an
// [UnknownDependencyError].
//
// Example usage:
//
//	r := deps.NewResolver(registry)
//
//	order, err := r.Resolve("gstreamer")
//	if err != nil {
//	    return err
//	}
//	for _, rec := range order {
//	    fmt.Println(rec.Name)
//	}
package deps
