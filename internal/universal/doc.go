// Package universal builds a recipe once per architecture and fuses the
// results into a single universal tree.
//
// A [Group] wraps one recipe instance per architecture and implements
// [build.Target], so the oven schedules it like any other recipe. The fetch
// step runs on the first instance only, since every instance shares the
// downloaded sources. The configure step, and the extract step of plain
// tarball sources, run concurrently on every instance and wait for all of
// them before returning. Every other step runs on each instance in group
// order.
//
// Flat groups append a merge step that walks the per-architecture install
// prefixes with a [Merger] and writes the fused tree into the universal
// prefix. The merge action of each path is detected from its content:
// Mach-O binaries are fat-combined, static archives are merged object by
// object, text files have their architecture prefixes rewritten, symlinks
// are recreated, libtool archives are skipped, and anything else is copied.
//
// Example usage:
//
//	merger := universal.NewMerger(universal.NewToolchain(runner, os.Stderr), 8)
//	group, err := universal.NewGroup([]*recipe.Recipe{arm64, x86}, universal.GroupOptions{
//	    Flat:   true,
//	    Prefix: "/opt/kiln/ios_universal",
//	    Merger: merger,
//	})
//	if err != nil {
//	    return err
//	}
package universal
