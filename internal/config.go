package internal

import (
	"strconv"
	"sync/atomic"
)

var (
	quietMode       atomic.Bool // Suppresses informational output.
	debugMode       atomic.Bool // Enables debug logging.
	verboseMode     atomic.Bool // Enables verbose logging.
	interactiveMode atomic.Bool // Enables the recovery menu on build failures.
)

// Parses the linker flags into usable runtime variables.
//
// Unparseable values leave the corresponding mode at its zero value, except
// interactive mode which defaults to enabled.
func init() {
	interactiveMode.Store(true)
	for raw, mode := range map[string]*atomic.Bool{
		rawQuiet:       &quietMode,
		rawDebug:       &debugMode,
		rawVerbose:     &verboseMode,
		rawInteractive: &interactiveMode,
	} {
		if v, err := strconv.ParseBool(raw); err == nil {
			mode.Store(v)
		}
	}
}

// Enables or disables quiet mode.
func SetQuiet(enabled bool) {
	quietMode.Store(enabled)
}

// Returns true if quiet mode is enabled.
func IsQuiet() bool {
	return quietMode.Load()
}

// Enables or disables debug mode.
func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

// Returns true if debug mode is enabled.
func IsDebug() bool {
	return debugMode.Load()
}

// Enables or disables verbose logging.
func SetVerbose(enabled bool) {
	verboseMode.Store(enabled)
}

// Returns true if verbose logging is enabled.
func IsVerbose() bool {
	return verboseMode.Load()
}

// Enables or disables interactive recovery.
func SetInteractive(enabled bool) {
	interactiveMode.Store(enabled)
}

// Returns true if build failures should prompt for a recovery action.
func IsInteractive() bool {
	return interactiveMode.Load()
}
