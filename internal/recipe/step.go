package recipe

import (
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Identifies one phase of building a recipe.
type Step string

const (
	StepFetch           Step = "fetch"
	StepExtract         Step = "extract"
	StepConfigure       Step = "configure"
	StepCompile         Step = "compile"
	StepInstall         Step = "install"
	StepPostInstall     Step = "post_install"
	StepGenLibraryFiles Step = "gen_library_files"
	StepRelocate        Step = "relocate_osx_libraries"
	StepCodeSign        Step = "code_sign"
	StepMerge           Step = "merge"
)

// Returns the step sequence for a target platform.
//
// Windows targets generate import libraries after post-install, Apple
// targets relocate shared libraries, and Apple build tools are code signed
// last. The merge step is not included; universal groups append it.
func DefaultSteps(p ocispec.Platform, buildTool bool) []Step {
	steps := []Step{
		StepFetch,
		StepExtract,
		StepConfigure,
		StepCompile,
		StepInstall,
		StepPostInstall,
	}

	switch p.OS {
	case "windows":
		steps = append(steps, StepGenLibraryFiles)
	case "darwin", "ios":
		steps = append(steps, StepRelocate)
		if buildTool {
			steps = append(steps, StepCodeSign)
		}
	}

	return steps
}

// Whether the step reads or writes the source tree only, so that a failure
// leaves the build directory in an untrusted state.
func (s Step) IsSource() bool {
	return s == StepFetch || s == StepExtract
}
