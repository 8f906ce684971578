// Package config loads build configurations.
//
// A configuration is a YAML file naming the target platform, the
// architectures of universal builds, the directories a session works in,
// where recipes are loaded from, and extra environment operations applied to
// every recipe. Unknown fields are rejected. Paths left empty default to
// per-configuration locations under the XDG base directories, and relative
// paths are resolved against the directory of the file.
//
// Example configuration:
//
//	platform: ios/arm64
//	archs: [arm64, amd64]
//	universal_flat: true
//	jobs: 8
//	recipe_dirs:
//	  - path: recipes
//	  - path: ~/my-recipes
//	    priority: 10
//	env:
//	  - op: append
//	    var: CFLAGS
//	    values: [-O2]
//	recipes:
//	  default: [zlib, libffi, glib]
//
// Example usage:
//
//	cfg, err := config.Load(paths.ConfigFile())
//	if err != nil {
//	    return err
//	}
package config
