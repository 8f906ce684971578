package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	programName = "kiln"

	// Default configuration name, used when no config file is given.
	DefaultConfigName = "default"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Directory holding configuration files.
//
//	Linux:   $XDG_CONFIG_HOME/kiln
//	macOS:   ~/Library/Application Support/kiln
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, programName)
}

// Default path to the configuration file.
//
//	Linux:   $XDG_CONFIG_HOME/kiln/default.yaml
//	macOS:   ~/Library/Application Support/kiln/default.yaml
func ConfigFile() string {
	return filepath.Join(ConfigDir(), DefaultConfigName+".yaml")
}

// Root directory for build trees, sources, and install prefixes of a
// configuration.
//
//	Linux:   $XDG_DATA_HOME/kiln/<config>
//	macOS:   ~/Library/Application Support/kiln/<config>
func Home(config string) string {
	return filepath.Join(xdg.DataHome, programName, config)
}

// Path to the build status file of a configuration.
//
// Each configuration keeps its own status file, so switching between
// configurations never invalidates another configuration's progress.
//
//	Linux:   $XDG_STATE_HOME/kiln/<config>.status.json
//	macOS:   ~/Library/Application Support/kiln/<config>.status.json
func StatusFile(config string) string {
	return filepath.Join(xdg.StateHome, programName, config+".status.json")
}

// Directory for per-recipe step logs.
//
//	Linux:   $XDG_STATE_HOME/kiln/logs/<config>
//	macOS:   ~/Library/Application Support/kiln/logs/<config>
func Logs(config string) string {
	return filepath.Join(xdg.StateHome, programName, "logs", config)
}

// Returns the configuration name derived from a config file path.
//
// The name is the base name without extension, e.g. "osx-universal" for
// "/etc/kiln/osx-universal.yaml".
func ConfigName(file string) string {
	if file == "" {
		return DefaultConfigName
	}
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
