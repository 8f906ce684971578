package recipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/containerd/platforms"
	"github.com/cruciblehq/kiln/internal/env"
	"github.com/cruciblehq/kiln/internal/errs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Kind of upstream source a recipe builds from.
type SourceKind string

const (
	SourceNone       SourceKind = ""
	SourceTarball    SourceKind = "tarball"
	SourceGit        SourceKind = "git"
	SourceGitTarball SourceKind = "git-tarball"
	SourceSVN        SourceKind = "svn"
	SourceLocal      SourceKind = "local"
)

// Whether sources of this kind are tracked by a revision.
func (k SourceKind) IsVCS() bool {
	return k == SourceGit || k == SourceGitTarball || k == SourceSVN
}

// Kind of library a recipe produces.
type LibraryType string

const (
	LibraryNone   LibraryType = "none"
	LibraryStatic LibraryType = "static"
	LibraryShared LibraryType = "shared"
	LibraryBoth   LibraryType = "both"
)

// Describes where a recipe's sources come from.
type Source struct {
	Kind     SourceKind // Kind of source.
	URL      string     // Download or clone location.
	Revision string     // VCS revision, empty for tarballs.
}

// Execution context passed to a step [Action].
type Exec struct {
	Recipe *Recipe   // Recipe being built.
	Step   Step      // Step being executed.
	Env    []string  // Scoped environment as "key=value" strings.
	Log    io.Writer // Step log.
}

// Implements one step of a recipe.
//
// Returning an error marks the step failed. Everything the action wants to
// keep for diagnosis should be written to x.Log.
type Action func(ctx context.Context, x *Exec) error

// A buildable component.
//
// Identity fields are fixed once the recipe is registered. The environment
// compositor and step logs change during a session.
type Recipe struct {
	Name         string              // Unique recipe name.
	Version      string              // Upstream version.
	Deps         []string            // Declared dependencies.
	PlatformDeps map[string][]string // Extra dependencies keyed by target OS.
	Steps        []Step              // Ordered build steps.
	File         string              // Definition file, used for fingerprinting.
	Patches      []string            // Patch files, used for fingerprinting.
	BuildDir     string              // Directory the recipe is built in.
	Prefix       string              // Install prefix.
	LogDir       string              // Directory for per-step logs.
	Platform     ocispec.Platform    // Target platform.
	Source       Source              // Upstream source.
	LibraryType  LibraryType         // Kind of library produced.
	RuntimeDep   bool                // Implicit dependency of every other recipe.
	BuildTool    bool                // Runs on the build host rather than the target.
	Actions      map[Step]Action     // Step implementations.
	Env          *env.Compositor     // Environment the steps run under.
}

// Returns the target architecture, e.g. "arm64".
func (r *Recipe) Arch() string {
	return r.Platform.Architecture
}

// Returns the target platform in "os/arch[/variant]" form.
func (r *Recipe) PlatformString() string {
	return platforms.Format(r.Platform)
}

// Returns the declared dependencies followed by the dependencies specific to
// the target OS, without duplicates.
func (r *Recipe) ListDeps() []string {
	deps := slices.Clone(r.Deps)
	for _, d := range r.PlatformDeps[r.Platform.OS] {
		if !slices.Contains(deps, d) {
			deps = append(deps, d)
		}
	}
	return deps
}

// Returns the version string recorded after a successful build.
//
// VCS sources embed the revision, so moving a recipe to a new upstream
// commit changes its built version.
func (r *Recipe) BuiltVersion() string {
	if r.Source.Kind.IsVCS() && r.Source.Revision != "" {
		return fmt.Sprintf("%s+%s~%s", r.Version, r.Source.Kind, r.Source.Revision)
	}
	return r.Version
}

// Whether the step has an action or is listed in the recipe's steps.
func (r *Recipe) HasStep(step Step) bool {
	return slices.Contains(r.Steps, step)
}

// Returns the path of the log file for a step.
func (r *Recipe) LogPath(step Step) string {
	return filepath.Join(r.LogDir, fmt.Sprintf("%s-%s.log", r.Name, step))
}

// Runs a single step.
//
// The step's log is truncated, the environment scope is opened, and the
// step's action is invoked. A step without an action succeeds without doing
// anything.
func (r *Recipe) Run(ctx context.Context, step Step) error {
	action := r.Actions[step]
	if action == nil {
		slog.Debug("no action for step", "recipe", r.Name, "step", step, "arch", r.Arch())
		return nil
	}

	log, err := r.openLog(step)
	if err != nil {
		return err
	}
	defer log.Close()

	scope, err := r.Env.Enter()
	if err != nil {
		return err
	}
	defer scope.Exit()

	return action(ctx, &Exec{
		Recipe: r,
		Step:   step,
		Env:    scope.Environ(),
		Log:    log,
	})
}

// Creates or truncates the log file for a step.
func (r *Recipe) openLog(step Step) (*os.File, error) {
	if err := os.MkdirAll(r.LogDir, 0755); err != nil {
		return nil, errs.Wrap(ErrStepLog, err)
	}
	f, err := os.Create(r.LogPath(step))
	if err != nil {
		return nil, errs.Wrap(ErrStepLog, err)
	}
	return f, nil
}

// Returns the contents of the logs for every step up to and including
// step, in step order. Missing logs are skipped.
func (r *Recipe) Logs(step Step) string {
	var out []byte
	for _, s := range r.Steps {
		data, err := os.ReadFile(r.LogPath(s))
		if err == nil && len(data) > 0 {
			out = fmt.Appendf(out, "==> %s (%s)\n", s, r.Arch())
			out = append(out, data...)
			if data[len(data)-1] != '\n' {
				out = append(out, '\n')
			}
		}
		if s == step {
			break
		}
	}
	return string(out)
}
