// Package session wires a configuration into a build.
//
// A [Session] loads the recipes of every architecture the configuration
// targets, opens the build status cache, and turns recipe names into the
// ordered targets the oven builds. Universal configurations get one
// [universal.Group] per recipe; others get one target per recipe.
//
// Example usage:
//
//	s, err := session.Open(cfg, session.Options{DryRun: dryRun})
//	if err != nil {
//	    return err
//	}
//	summary, err := s.Build(ctx, []string{"glib"}, session.BuildOptions{})
package session
