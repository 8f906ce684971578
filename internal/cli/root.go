package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/config"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/session"
)

// Represents the root command for kiln.
var RootCmd struct {
	Quiet   bool       `short:"q" help:"Suppress informational output."`
	Verbose bool       `short:"v" help:"Enable verbose output."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	Config  string     `short:"c" help:"Configuration name or file. Names are looked up in ${config_dir}." placeholder:"CONFIG"`
	Build   BuildCmd   `cmd:"" help:"Build recipes and their dependencies."`
	Deps    DepsCmd    `cmd:"" help:"Show the dependencies of a recipe."`
	Rdeps   RdepsCmd   `cmd:"" help:"Show the recipes depending on a recipe."`
	Graph   GraphCmd   `cmd:"" help:"Print the dependency graph in Graphviz format."`
	Cache   CacheCmd   `cmd:"" help:"Show or change the stored build status."`
	List    ListCmd    `cmd:"" help:"List the available recipes."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds software from recipes for one or more target architectures."),
		kong.UsageOnError(),
		kong.Vars{
			"version":    internal.VersionString(),
			"config_dir": paths.ConfigDir(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	logger, ok := slog.Default().Handler().(*log.Logger)
	if !ok {
		return // Not a charm logger, nothing to configure
	}

	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	internal.SetDebug(debug)
	internal.SetQuiet(quiet)
	internal.SetVerbose(verbose)

	if debug {
		logger.SetLevel(log.DebugLevel)
	} else if quiet {
		logger.SetLevel(log.WarnLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}

	// Timestamps only when asked for
	logger.SetReportTimestamp(verbose || debug)
	logger.SetTimeFormat(time.TimeOnly)

	if !isatty(os.Stderr) {
		logger.SetFormatter(log.LogfmtFormatter)
	}
	logger.SetOutput(os.Stderr)
}

// Loads the configuration selected with --config.
//
// Without a flag the default configuration file is used if it exists, and
// built-in defaults otherwise. A bare name such as "osx-universal" refers to
// a file in the configuration directory.
func loadConfig() (*config.Config, error) {
	name := RootCmd.Config
	if name == "" {
		if _, err := os.Stat(paths.ConfigFile()); err != nil {
			return config.Default(paths.DefaultConfigName)
		}
		return config.Load(paths.ConfigFile())
	}
	return config.Load(configPath(name))
}

// Returns the file a --config value refers to.
func configPath(name string) string {
	if strings.ContainsRune(name, filepath.Separator) || filepath.Ext(name) != "" {
		return name
	}
	return filepath.Join(paths.ConfigDir(), name+".yaml")
}

// Loads the configuration and opens a session over it.
func openSession(opts session.Options) (*session.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return session.Open(cfg, opts)
}

// Whether the given file is an interactive terminal.
func isatty(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
