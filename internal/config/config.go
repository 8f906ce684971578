package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/containerd/platforms"
	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/env"
	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/recipe"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"gopkg.in/yaml.v3"
)

// A directory recipes are loaded from.
type RecipeDir struct {
	Path     string `yaml:"path"`
	Priority int    `yaml:"priority,omitempty"` // Higher priorities override lower ones.
}

// An environment operation applied to every recipe.
type EnvOp struct {
	Op     string   `yaml:"op"`               // set, append, prepend, or remove.
	Var    string   `yaml:"var"`              // Variable name.
	Values []string `yaml:"values,omitempty"` // Values contributed.
	Sep    string   `yaml:"sep,omitempty"`    // Separator, a space by default.
	Timing string   `yaml:"timing,omitempty"` // deferred, now, or now-with-restore.
}

// Recipes built when none are named on the command line.
type RecipeLists struct {
	Default  []string `yaml:"default,omitempty"`  // Base list.
	Extra    []string `yaml:"extra,omitempty"`    // Appended to the base list.
	Override []string `yaml:"override,omitempty"` // Replaces the base list.
}

// A build configuration.
type Config struct {
	Name        string      `yaml:"-"`                        // Configuration name, derived from the file name.
	Platform    string      `yaml:"platform,omitempty"`       // Target platform, e.g. "darwin/arm64".
	Archs       []string    `yaml:"archs,omitempty"`          // Architectures of a universal build.
	Flat        bool        `yaml:"universal_flat,omitempty"` // Merge universal builds into one prefix.
	Home        string      `yaml:"home,omitempty"`           // Root of the working directories.
	Prefix      string      `yaml:"prefix,omitempty"`         // Install prefix.
	Sources     string      `yaml:"sources,omitempty"`        // Build directories.
	Downloads   string      `yaml:"downloads,omitempty"`      // Download cache.
	Logs        string      `yaml:"logs,omitempty"`           // Step logs.
	CacheFile   string      `yaml:"cache_file,omitempty"`     // Build status file.
	RecipeDirs  []RecipeDir `yaml:"recipe_dirs,omitempty"`    // Recipe directories.
	Jobs        int         `yaml:"jobs,omitempty"`           // Concurrent jobs, the CPU count by default.
	Interactive *bool       `yaml:"interactive,omitempty"`    // Prompt for recovery on failures.
	Env         []EnvOp     `yaml:"env,omitempty"`            // Extra environment operations.
	Recipes     RecipeLists `yaml:"recipes,omitempty"`        // Default recipe lists.
}

// Returns the default configuration of the given name.
func Default(name string) (*Config, error) {
	cfg := &Config{Name: name}
	if err := cfg.finalize(""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Loads the configuration file at path.
//
// The configuration name is the file's base name without extension. An
// empty file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(ErrRead, err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errs.Wrapf(ErrParse, "%s: %v", path, err)
	}

	cfg.Name = paths.ConfigName(path)
	if err := cfg.finalize(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Fills in defaults, resolves paths against base, and validates.
func (c *Config) finalize(base string) error {
	if c.Name == "" {
		c.Name = paths.DefaultConfigName
	}
	if c.Platform == "" {
		c.Platform = internal.HostPlatform()
	}

	p, err := platforms.Parse(c.Platform)
	if err != nil {
		return &ConfigurationError{Field: "platform", Reason: err.Error()}
	}
	c.Platform = platforms.Format(p)

	for i, arch := range c.Archs {
		c.Archs[i] = platforms.Normalize(ocispec.Platform{OS: p.OS, Architecture: arch}).Architecture
	}

	c.Home = resolve(base, c.Home, paths.Home(c.Name))
	c.Prefix = resolve(base, c.Prefix, filepath.Join(c.Home, "dist", c.distName(p)))
	c.Sources = resolve(base, c.Sources, filepath.Join(c.Home, "sources", c.distName(p)))
	c.Downloads = resolve(base, c.Downloads, filepath.Join(c.Home, "sources", "downloads"))
	c.Logs = resolve(base, c.Logs, paths.Logs(c.Name))
	c.CacheFile = resolve(base, c.CacheFile, paths.StatusFile(c.Name))

	if len(c.RecipeDirs) == 0 {
		c.RecipeDirs = []RecipeDir{{Path: filepath.Join(c.Home, "recipes")}}
	}
	for i := range c.RecipeDirs {
		c.RecipeDirs[i].Path = resolve(base, c.RecipeDirs[i].Path, "")
	}

	if c.Jobs == 0 {
		c.Jobs = runtime.NumCPU()
	}

	return c.validate()
}

// Returns the name of the distribution directory of the target.
func (c *Config) distName(p ocispec.Platform) string {
	if c.Universal() {
		return p.OS + "_universal"
	}
	return p.OS + "_" + p.Architecture
}

// Checks values that defaults cannot repair.
func (c *Config) validate() error {
	if len(c.Recipes.Extra) > 0 && len(c.Recipes.Override) > 0 {
		return &ConfigurationError{Field: "recipes", Reason: "extra and override cannot be used together"}
	}
	if c.Jobs < 0 {
		return &ConfigurationError{Field: "jobs", Reason: "must not be negative"}
	}

	seen := make(map[string]bool, len(c.Archs))
	for _, arch := range c.Archs {
		if arch == "" {
			return &ConfigurationError{Field: "archs", Reason: "empty architecture"}
		}
		if seen[arch] {
			return &ConfigurationError{Field: "archs", Reason: "duplicate architecture " + arch}
		}
		seen[arch] = true
	}

	for _, d := range c.RecipeDirs {
		if d.Path == "" {
			return &ConfigurationError{Field: "recipe_dirs", Reason: "empty path"}
		}
	}

	if _, err := c.EnvOps(); err != nil {
		return &ConfigurationError{Field: "env", Reason: err.Error()}
	}
	return nil
}

// Whether the configuration builds for more than one architecture.
func (c *Config) Universal() bool {
	return len(c.Archs) > 1
}

// Returns the target platform.
func (c *Config) TargetPlatform() ocispec.Platform {
	return platforms.MustParse(c.Platform)
}

// Returns the architectures built, in build order.
func (c *Config) Architectures() []string {
	if len(c.Archs) == 0 {
		return []string{c.TargetPlatform().Architecture}
	}
	return slices.Clone(c.Archs)
}

// Returns the target platform of one architecture.
func (c *Config) PlatformFor(arch string) ocispec.Platform {
	p := c.TargetPlatform()
	if p.Architecture != arch {
		p.Architecture = arch
		p.Variant = ""
	}
	return platforms.Normalize(p)
}

// Returns the loader target of one architecture.
//
// Universal builds give every architecture its own prefix, build
// directories, and logs below the shared ones. Downloads are always shared.
func (c *Config) TargetFor(arch string, base *env.Compositor) (recipe.Target, error) {
	ops, err := c.EnvOps()
	if err != nil {
		return recipe.Target{}, err
	}

	e := base.Clone()
	e.Register(ops...)

	t := recipe.Target{
		Platform:  c.PlatformFor(arch),
		Prefix:    c.Prefix,
		Sources:   c.Sources,
		Downloads: c.Downloads,
		Logs:      c.Logs,
		Env:       e,
	}
	if c.Universal() {
		t.Prefix = filepath.Join(c.Prefix, arch)
		t.Sources = filepath.Join(c.Sources, arch)
		t.Logs = filepath.Join(c.Logs, arch)
	}
	return t, nil
}

// Returns the recipe directories in loader form.
func (c *Config) LoaderDirs() []recipe.Dir {
	dirs := make([]recipe.Dir, len(c.RecipeDirs))
	for i, d := range c.RecipeDirs {
		dirs[i] = recipe.Dir{Path: d.Path, Priority: d.Priority}
	}
	return dirs
}

// Converts the configured environment operations.
func (c *Config) EnvOps() ([]env.Op, error) {
	ops := make([]env.Op, 0, len(c.Env))
	for _, e := range c.Env {
		if e.Var == "" {
			return nil, errs.Wrapf(ErrParse, "env operation %q without a variable", e.Op)
		}
		kind, err := env.ParseKind(e.Op)
		if err != nil {
			return nil, err
		}
		timing, err := env.ParseTiming(e.Timing)
		if err != nil {
			return nil, err
		}
		sep := e.Sep
		if sep == "" {
			sep = " "
		}
		ops = append(ops, env.Op{Kind: kind, Var: e.Var, Values: e.Values, Sep: sep, Timing: timing})
	}
	return ops, nil
}

// Returns the recipes to build when none are named.
//
// The override list replaces the default list; otherwise the extra list is
// appended to it.
func (c *Config) DefaultRecipes() []string {
	if len(c.Recipes.Override) > 0 {
		return slices.Clone(c.Recipes.Override)
	}
	out := slices.Clone(c.Recipes.Default)
	for _, name := range c.Recipes.Extra {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Returns the interactive setting, or fallback if the file leaves it unset.
func (c *Config) IsInteractive(fallback bool) bool {
	if c.Interactive == nil {
		return fallback
	}
	return *c.Interactive
}

// Expands a leading "~" and makes path absolute relative to base. Empty
// paths become def.
func resolve(base, path, def string) string {
	if path == "" {
		return def
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if !filepath.IsAbs(path) && base != "" {
		path = filepath.Join(base, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
