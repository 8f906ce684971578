package internal

import (
	"fmt"
	"strings"

	"github.com/containerd/platforms"
)

const (

	// Program name, used for directories, config files, and log prefixes.
	Name = "kiln"

	// String to indicate an undefined variable
	defaultUndefined = "(undefined)"

	// String to indicate a local (non-pipeline) build
	defaultLocalBuild = "(local)"

	// Main branch name used in version strings
	mainBranch = "main"
)

var (
	version   = "" // Version number (e.g., "1.2.3")
	stage     = "" // Development stage or git branch (e.g., "staging", "main")
	gitCommit = "" // Git commit hash (e.g., "a1b2c3d4")

	rawQuiet       = "false" // Whether to enable quiet mode
	rawDebug       = "false" // Whether to enable debug mode
	rawVerbose     = "false" // Whether to enable verbose logging
	rawInteractive = "true"  // Whether build failures prompt for recovery by default
)

// Returns the current version.
//
// If the version is not set, returns "(undefined)". A leading "v" is stripped.
func Version() string {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "" {
		return defaultUndefined
	}
	return strings.TrimPrefix(v, "v")
}

// Returns the development stage, or "(undefined)".
func Stage() string {
	s := strings.TrimSpace(stage)
	if s == "" {
		return defaultUndefined
	}
	return strings.ToLower(s)
}

// Returns the git commit hash, or "(undefined)".
func GitCommit() string {
	c := strings.TrimSpace(gitCommit)
	if c == "" {
		return defaultUndefined
	}
	return c
}

// Returns the platform of the control host in "os/arch" form.
func HostPlatform() string {
	return platforms.Format(platforms.DefaultSpec())
}

// Returns true if this is a local (non-pipeline) build.
//
// Pipeline builds set version, git commit, and stage via linker flags. If any
// of the three is missing the build is considered local.
func IsLocal() bool {
	return strings.TrimSpace(version) == "" ||
		strings.TrimSpace(gitCommit) == "" ||
		strings.TrimSpace(stage) == ""
}

// Returns a detailed version string.
//
// Local builds return "(local)". Otherwise the result is formatted as
// "<version>+<stage> <git-commit> [<host-platform>]", with the stage omitted
// for the main branch.
func VersionString() string {
	if IsLocal() {
		return defaultLocalBuild
	}

	s := Stage()
	if s == mainBranch {
		s = ""
	} else {
		s = "+" + s
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), s, GitCommit(), HostPlatform())
}
