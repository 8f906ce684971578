package cache

import (
	"slices"
	"time"

	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/opencontainers/go-digest"
)

// Current version of the status file format.
const formatVersion = 1

// Persisted build status of a recipe.
//
// Fields missing from an older status file decode to their zero values,
// which are always the conservative choice: no steps done, and an empty
// fingerprint that marks the status stale.
type Status struct {
	Steps        []recipe.Step `json:"steps"`                   // Completed steps, in completion order.
	NeedsBuild   bool          `json:"needs_build"`             // Whether the recipe must be built.
	BuiltVersion string        `json:"built_version,omitempty"` // Version recorded by the last successful build.
	Fingerprint  digest.Digest `json:"fingerprint,omitempty"`   // Content fingerprint at the last validation.
	File         string        `json:"file,omitempty"`          // Definition file the status belongs to.
	Touched      time.Time     `json:"touched"`                 // Last time the status was updated or validated.
}

// Whether the step is recorded as completed.
func (s *Status) Done(step recipe.Step) bool {
	return slices.Contains(s.Steps, step)
}

// Returns a deep copy of the status.
func (s *Status) clone() *Status {
	c := *s
	c.Steps = slices.Clone(s.Steps)
	return &c
}

// On-disk layout of the status file.
type document struct {
	Version int                `json:"version"`
	Recipes map[string]*Status `json:"recipes"`
}
