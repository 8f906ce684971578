package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/cli"
)

// The entry point for kiln.
//
// Initializes logging, displays startup information, and executes the root
// command. Errors are logged and mapped to an exit status by their class.
func main() {
	slog.SetDefault(slog.New(logger()))

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("kiln is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		if internal.IsDebug() {
			slog.Error(fmt.Sprintf("%+v", err))
		} else {
			slog.Error(err.Error())
		}
		os.Exit(cli.ExitCode(err))
	}
}

// Creates a logger seeded from build-time linker flags.
//
// The logger is reconfigured after flag parsing via cli.Execute.
func logger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:  logLevel(),
		Prefix: internal.Name,
	})
}

// Returns the log level derived from build-time linker flags.
func logLevel() log.Level {
	if internal.IsDebug() {
		return log.DebugLevel
	}
	if internal.IsQuiet() {
		return log.WarnLevel
	}
	return log.InfoLevel
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
