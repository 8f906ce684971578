// Parses flags, configures logging, and runs the kiln commands.
//
// The following global flags are accepted:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-c, --config    Configuration name or file.
//
// Commands:
//
//	build [recipes]     Build recipes and their dependencies.
//	deps <recipe>       Show the dependencies of a recipe.
//	rdeps <recipe>      Show the recipes depending on a recipe.
//	graph [recipes]     Print the dependency graph in Graphviz format.
//	cache [recipes]     Show, reset, or touch the stored build status.
//	list                List the available recipes.
//	version             Show version information.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity
// before the command runs. [ExitCode] maps the returned error to a process
// exit status by its error class.
package cli
