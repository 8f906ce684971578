// Package cache persists which build steps have completed for each recipe.
//
// A [Cache] maps recipe names to a [Status] and is written through to a
// per-configuration JSON file after every mutation. Statuses are validated
// the first time a recipe is looked up after loading: a changed built
// version or definition path discards the status, and a definition file
// modified since the status was last touched is re-fingerprinted, discarding
// the status only if its content actually changed.
//
// A missing, unreadable, or corrupt status file is never fatal. The cache
// starts empty and the session builds from scratch. Write failures are
// logged as warnings and the in-memory state stays authoritative.
//
// Example usage:
//
//	c := cache.Open(paths.StatusFile("osx-universal"))
//
//	if !c.StepDone(r, recipe.StepCompile) {
//	    if err := r.Run(ctx, recipe.StepCompile); err != nil {
//	        return err
//	    }
//	    c.RecordStep(r, recipe.StepCompile)
//	}
package cache
