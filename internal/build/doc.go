// Package build schedules recipe steps and recovers from build failures.
//
// An [Oven] cooks an ordered list of targets, one at a time. A [Target] is
// either a single recipe ([Single]) or a group of per-architecture recipe
// instances that behaves as one recipe. For each target the oven walks the
// step sequence, skipping steps the status cache records as done unless a
// rebuild was forced, and records each step as soon as it succeeds so an
// interrupted session resumes past it. When every step has succeeded the
// target's built version is recorded.
//
// A failed step produces a [BuildStepError] carrying the recipe, step,
// architecture, and the logs of the failing and earlier steps. A failure in
// the fetch or extract step wipes the build directories and resets the
// recipe's status first, since a partial source tree cannot be resumed. In
// interactive mode a [Prompter] offers recovery actions: open a shell in the
// build environment, rebuild from scratch, retry the failed step, skip the
// recipe, or abort the session. Otherwise the error stops the session.
//
// A recipe that is not itself a static library is rebuilt when one of its
// dependencies is a static library rebuilt in the same session, so that it
// links the new objects.
//
// Example usage:
//
//	oven := build.NewOven(statusCache, build.Options{
//	    Interactive: true,
//	    Prompter:    prompt.New(),
//	    Shell:       runner,
//	    Out:         os.Stdout,
//	})
//
//	targets := []build.Target{build.Single(zlib), build.Single(glib)}
//	summary, err := oven.Cook(ctx, targets)
//	if err != nil {
//	    return err
//	}
package build
