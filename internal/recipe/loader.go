package recipe

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/cruciblehq/kiln/internal/env"
	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/cruciblehq/kiln/internal/fetch"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/kballard/go-shellquote"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/zclconf/go-cty/cty"
)

// File extension of recipe files.
const fileExt = ".hcl"

// Runs shell scripts on behalf of recipe actions.
type Runner interface {
	Script(ctx context.Context, script, dir string, env []string, log io.Writer) error
	DryRun() bool
}

// A directory of recipe files.
//
// Directories with a higher priority override recipes of the same name from
// directories with a lower priority.
type Dir struct {
	Path     string
	Priority int
}

// Describes the build target recipes are loaded for.
type Target struct {
	Platform  ocispec.Platform // Target platform.
	Prefix    string           // Install prefix.
	Sources   string           // Root of the build directories.
	Downloads string           // Download cache shared between targets. Defaults to Sources/downloads.
	Logs      string           // Root of the step logs.
	Env       *env.Compositor  // Base environment, cloned for every recipe.
}

// Returns the directory downloads are stored in.
func (t Target) downloads() string {
	if t.Downloads != "" {
		return t.Downloads
	}
	return filepath.Join(t.Sources, "downloads")
}

// Loads recipes from HCL files.
type Loader struct {
	runner Runner
	guard  *fetch.Guard
	parser *hclparse.Parser
}

// Creates a loader whose actions run through runner.
//
// Fetches are deduplicated through guard, which should be shared by every
// loader of a session.
func NewLoader(runner Runner, guard *fetch.Guard) *Loader {
	return &Loader{
		runner: runner,
		guard:  guard,
		parser: hclparse.NewParser(),
	}
}

// Top-level structure of a recipe file.
type fileSpec struct {
	Recipes []recipeSpec `hcl:"recipe,block"`
}

type recipeSpec struct {
	Name         string              `hcl:"name,label"`
	Version      string              `hcl:"version"`
	Deps         []string            `hcl:"deps,optional"`
	PlatformDeps map[string][]string `hcl:"platform_deps,optional"`
	RuntimeDep   bool                `hcl:"runtime_dep,optional"`
	BuildTool    bool                `hcl:"build_tool,optional"`
	LibraryType  string              `hcl:"library_type,optional"`
	Patches      []string            `hcl:"patches,optional"`
	Steps        []string            `hcl:"steps,optional"`
	Source       *sourceSpec         `hcl:"source,block"`
	Env          []envSpec           `hcl:"env,block"`
	StepBlocks   []stepSpec          `hcl:"step,block"`
}

type sourceSpec struct {
	Kind     string `hcl:"kind"`
	URL      string `hcl:"url,optional"`
	Revision string `hcl:"revision,optional"`
}

type envSpec struct {
	Op     string   `hcl:"op,label"`
	Var    string   `hcl:"var"`
	Values []string `hcl:"values,optional"`
	Sep    string   `hcl:"sep,optional"`
	Timing string   `hcl:"timing,optional"`
}

type stepSpec struct {
	Name     string   `hcl:"name,label"`
	Commands []string `hcl:"commands"`
}

// Loads every recipe file in dirs into a new registry.
//
// Directories are read in ascending priority, so a recipe from a
// higher-priority directory replaces one of the same name. Within a
// directory files are read in lexical order.
func (l *Loader) Load(dirs []Dir, t Target) (*Registry, error) {
	sorted := slices.Clone(dirs)
	slices.SortStableFunc(sorted, func(a, b Dir) int { return cmp.Compare(a.Priority, b.Priority) })

	reg := NewRegistry()
	for _, d := range sorted {
		files, err := filepath.Glob(filepath.Join(d.Path, "*"+fileExt))
		if err != nil {
			return nil, errs.Wrap(ErrLoad, err)
		}
		slices.Sort(files)

		for _, file := range files {
			recipes, err := l.LoadFile(file, t)
			if err != nil {
				return nil, err
			}
			for _, r := range recipes {
				if reg.Has(r.Name) {
					slog.Debug("recipe overridden", "recipe", r.Name, "file", file)
				}
				reg.Add(r)
			}
		}
	}

	return reg, nil
}

// Loads the recipes declared in a single file.
func (l *Loader) LoadFile(file string, t Target) ([]*Recipe, error) {
	f, diags := l.parser.ParseHCLFile(file)
	if diags.HasErrors() {
		return nil, errs.Wrap(ErrLoad, diags)
	}

	var spec fileSpec
	if diags := gohcl.DecodeBody(f.Body, evalContext(t), &spec); diags.HasErrors() {
		return nil, errs.Wrap(ErrLoad, diags)
	}

	recipes := make([]*Recipe, 0, len(spec.Recipes))
	for _, rs := range spec.Recipes {
		r, err := l.build(file, rs, t)
		if err != nil {
			return nil, errs.Wrapf(ErrLoad, "%s: recipe %q: %w", file, rs.Name, err)
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

// Returns the evaluation context exposing the target to recipe files as
// target.os, target.arch, target.variant, target.prefix and target.sources.
func evalContext(t Target) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"target": cty.ObjectVal(map[string]cty.Value{
				"os":      cty.StringVal(t.Platform.OS),
				"arch":    cty.StringVal(t.Platform.Architecture),
				"variant": cty.StringVal(t.Platform.Variant),
				"prefix":  cty.StringVal(t.Prefix),
				"sources": cty.StringVal(t.Sources),
			}),
		},
	}
}

// Builds a recipe from its decoded block.
func (l *Loader) build(file string, rs recipeSpec, t Target) (*Recipe, error) {
	base := filepath.Dir(file)

	r := &Recipe{
		Name:         rs.Name,
		Version:      rs.Version,
		Deps:         rs.Deps,
		PlatformDeps: rs.PlatformDeps,
		File:         file,
		BuildDir:     filepath.Join(t.Sources, rs.Name+"-"+rs.Version),
		Prefix:       t.Prefix,
		LogDir:       t.Logs,
		Platform:     t.Platform,
		LibraryType:  LibraryType(cmp.Or(rs.LibraryType, string(LibraryNone))),
		RuntimeDep:   rs.RuntimeDep,
		BuildTool:    rs.BuildTool,
		Actions:      make(map[Step]Action),
	}

	for _, p := range rs.Patches {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		r.Patches = append(r.Patches, p)
	}

	if rs.Source != nil {
		r.Source = Source{Kind: SourceKind(rs.Source.Kind), URL: rs.Source.URL, Revision: rs.Source.Revision}
	}

	if len(rs.Steps) > 0 {
		for _, s := range rs.Steps {
			r.Steps = append(r.Steps, Step(s))
		}
	} else {
		r.Steps = DefaultSteps(t.Platform, rs.BuildTool)
	}

	if t.Env != nil {
		r.Env = t.Env.Clone()
	} else {
		r.Env = env.New(nil)
	}
	r.Env.Register(
		env.Set("PREFIX", t.Prefix),
		env.Set("KILN_RECIPE", rs.Name),
		env.Set("KILN_ARCH", t.Platform.Architecture),
	)
	for _, es := range rs.Env {
		op, err := envOp(es)
		if err != nil {
			return nil, err
		}
		r.Env.Register(op)
	}

	for _, ss := range rs.StepBlocks {
		step := Step(ss.Name)
		if !r.HasStep(step) {
			return nil, fmt.Errorf("step %q is not part of the recipe's steps", ss.Name)
		}
		r.Actions[step] = l.scriptAction(ss.Commands)
	}

	l.addSourceActions(r, t)
	return r, nil
}

// Converts an env block into an operation.
func envOp(es envSpec) (env.Op, error) {
	kind, err := env.ParseKind(es.Op)
	if err != nil {
		return env.Op{}, err
	}

	timing, err := env.ParseTiming(es.Timing)
	if err != nil {
		return env.Op{}, err
	}
	return env.Op{Kind: kind, Var: es.Var, Values: es.Values, Sep: cmp.Or(es.Sep, " "), Timing: timing}, nil
}

// Returns an action that runs each command in order in the build directory.
func (l *Loader) scriptAction(commands []string) Action {
	return func(ctx context.Context, x *Exec) error {
		if err := os.MkdirAll(x.Recipe.BuildDir, 0755); err != nil {
			return err
		}
		for _, c := range commands {
			fmt.Fprintf(x.Log, "$ %s\n", c)
			if err := l.runner.Script(ctx, c, x.Recipe.BuildDir, x.Env, x.Log); err != nil {
				return err
			}
		}
		return nil
	}
}

// Installs default fetch and extract actions for tarball sources and the
// patch application that follows extraction.
//
// Actions declared explicitly in the recipe file take precedence over the
// defaults. Extraction is followed by applying every patch with "patch -p1".
func (l *Loader) addSourceActions(r *Recipe, t Target) {
	if r.Source.Kind == SourceTarball && r.Source.URL != "" {
		archive := filepath.Join(t.downloads(), tarballName(r.Source.URL))

		if r.Actions[StepFetch] == nil {
			r.Actions[StepFetch] = l.fetchTarball(r.Source.URL, archive)
		}
		if r.Actions[StepExtract] == nil {
			r.Actions[StepExtract] = l.discardOnFailure(l.scriptAction([]string{
				"tar -xf " + shellquote.Join(archive) + " --strip-components=1",
			}), r.Source.URL, archive)
		}
	}

	if len(r.Patches) == 0 {
		return
	}

	extract := r.Actions[StepExtract]
	r.Actions[StepExtract] = func(ctx context.Context, x *Exec) error {
		if extract != nil {
			if err := extract(ctx, x); err != nil {
				return err
			}
		}
		for _, p := range r.Patches {
			fmt.Fprintf(x.Log, "applying %s\n", p)
			if err := l.runner.Script(ctx, "patch -p1 -i "+shellquote.Join(p), r.BuildDir, x.Env, x.Log); err != nil {
				return err
			}
		}
		return nil
	}
}

// Returns an action downloading url to archive once per session.
func (l *Loader) fetchTarball(rawURL, archive string) Action {
	return func(ctx context.Context, x *Exec) error {
		return l.guard.Do(ctx, rawURL, func(ctx context.Context) error {
			if _, err := os.Stat(archive); err == nil {
				fmt.Fprintf(x.Log, "%s already downloaded\n", archive)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(archive), 0755); err != nil {
				return err
			}
			script := fmt.Sprintf("curl -L --fail --retry 2 -o %s %s",
				shellquote.Join(archive+".part"), shellquote.Join(rawURL))
			if err := l.runner.Script(ctx, script, "", x.Env, x.Log); err != nil {
				return err
			}
			if l.runner.DryRun() {
				return nil
			}
			return os.Rename(archive+".part", archive)
		})
	}
}

// Wraps a tarball extraction so that a failure discards the download.
//
// A failed extraction usually means a truncated or corrupt archive, so the
// archive is removed and the guard forgets the location. Fetching again
// then downloads a fresh copy.
func (l *Loader) discardOnFailure(extract Action, rawURL, archive string) Action {
	return func(ctx context.Context, x *Exec) error {
		err := extract(ctx, x)
		if err == nil || ctx.Err() != nil || l.runner.DryRun() {
			return err
		}
		fmt.Fprintf(x.Log, "discarding %s\n", archive)
		if rerr := os.Remove(archive); rerr != nil && !os.IsNotExist(rerr) {
			slog.Warn("failed to remove download", "path", archive, "error", rerr)
		}
		l.guard.Forget(rawURL)
		return err
	}
}

// Returns the file name of a tarball URL.
func tarballName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}
