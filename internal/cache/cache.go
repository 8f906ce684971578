package cache

import (
	"encoding/json"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/cruciblehq/kiln/internal/fsutil"
	"github.com/cruciblehq/kiln/internal/recipe"
)

// Build status of every recipe known to a session.
//
// A cache is owned by a single session and is not safe for concurrent use.
type Cache struct {
	path     string             // Status file, empty for an in-memory cache.
	statuses map[string]*Status // Status per recipe name.
	checked  map[string]bool    // Recipes validated since loading.
	now      func() time.Time   // Clock, replaceable in tests.
}

// Creates an empty cache that is never persisted.
func New() *Cache {
	return &Cache{
		statuses: make(map[string]*Status),
		checked:  make(map[string]bool),
		now:      time.Now,
	}
}

// Loads the cache persisted at path.
//
// A missing file yields an empty cache. An unreadable or corrupt file, or
// one written by a newer format version, is discarded with a warning.
func Open(path string) *Cache {
	c := New()
	c.path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("no build status found", "path", path)
		return c
	}
	if err != nil {
		slog.Warn(errs.Wrap(ErrLoad, err).Error(), "path", path)
		return c
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn(errs.Wrap(ErrLoad, err).Error(), "path", path)
		return c
	}
	if doc.Version > formatVersion {
		slog.Warn(ErrLoad.Error(), "path", path, "version", doc.Version, "supported", formatVersion)
		return c
	}

	for name, st := range doc.Recipes {
		if st != nil {
			c.statuses[name] = st
		}
	}
	slog.Debug("loaded build status", "path", path, "recipes", len(c.statuses))
	return c
}

// Returns the path of the status file, or an empty string.
func (c *Cache) Path() string {
	return c.path
}

// Returns the status of a recipe, creating a fresh one if needed.
//
// The first lookup of each recipe after loading validates the stored status
// against the recipe and discards it if stale. The returned status is owned
// by the cache and must not be modified.
func (c *Cache) Get(r *recipe.Recipe) *Status {
	if !c.checked[r.Name] {
		c.checked[r.Name] = true
		c.validate(r)
	}

	st, ok := c.statuses[r.Name]
	if !ok {
		st = c.fresh(r)
		c.statuses[r.Name] = st
	}
	return st
}

// Returns the stored status of a recipe by name, without validation.
func (c *Cache) Lookup(name string) (*Status, bool) {
	st, ok := c.statuses[name]
	if !ok {
		return nil, false
	}
	return st.clone(), true
}

// Returns the names of recipes with a stored status, in lexical order.
func (c *Cache) Names() []string {
	return slices.Sorted(maps.Keys(c.statuses))
}

// Whether the step of a recipe is recorded as completed.
func (c *Cache) StepDone(r *recipe.Recipe, step recipe.Step) bool {
	return c.Get(r).Done(step)
}

// Whether a recipe must be built.
func (c *Cache) NeedsBuild(r *recipe.Recipe) bool {
	return c.Get(r).NeedsBuild
}

// Records a completed step and saves the cache.
func (c *Cache) RecordStep(r *recipe.Recipe, step recipe.Step) {
	st := c.Get(r)
	if !st.Done(step) {
		st.Steps = append(st.Steps, step)
	}
	st.Touched = c.now()
	c.persist()
}

// Records a successful build of version and saves the cache.
func (c *Cache) RecordBuild(r *recipe.Recipe, version string) {
	st := c.Get(r)
	st.NeedsBuild = false
	st.BuiltVersion = version
	st.Touched = c.now()
	c.persist()
}

// Discards the status of a recipe and saves the cache.
//
// The next lookup starts from a fresh status that needs building.
func (c *Cache) Reset(name string) {
	if _, ok := c.statuses[name]; !ok {
		return
	}
	slog.Debug("resetting build status", "recipe", name)
	delete(c.statuses, name)
	c.persist()
}

// Accepts the recipe's current definition as unchanged.
//
// The stored fingerprint, file path, and touch time are refreshed so that
// cosmetic edits to the definition do not trigger a rebuild.
func (c *Cache) Touch(r *recipe.Recipe) error {
	st := c.Get(r)
	if r.File != "" {
		fp, err := r.Fingerprint()
		if err != nil {
			return err
		}
		st.Fingerprint = fp
		st.File = r.File
	}
	st.Touched = c.now()
	c.persist()
	return nil
}

// Returns a fresh status for a recipe.
func (c *Cache) fresh(r *recipe.Recipe) *Status {
	st := &Status{
		Steps:      []recipe.Step{},
		NeedsBuild: true,
		File:       r.File,
		Touched:    c.now(),
	}
	if r.File != "" {
		fp, err := r.Fingerprint()
		if err != nil {
			slog.Warn("could not fingerprint recipe", "recipe", r.Name, "error", err)
		}
		st.Fingerprint = fp
	}
	return st
}

// Discards the stored status of a recipe if it no longer matches the
// recipe.
//
// Checks run from cheapest to most expensive: the built version, the
// definition path, and the definition's modification time. Only a
// definition modified after the last touch is fingerprinted.
func (c *Cache) validate(r *recipe.Recipe) {
	st, ok := c.statuses[r.Name]
	if !ok {
		return
	}

	if st.BuiltVersion != "" && st.BuiltVersion != r.BuiltVersion() {
		c.discard(r.Name, "built version changed", "stored", st.BuiltVersion, "current", r.BuiltVersion())
		return
	}

	if r.File == "" {
		return
	}

	if st.File == "" {
		st.File = r.File
	}
	if st.File != r.File {
		c.discard(r.Name, "definition moved", "stored", st.File, "current", r.File)
		return
	}

	if st.Fingerprint == "" {
		c.discard(r.Name, "no fingerprint recorded")
		return
	}

	info, err := os.Stat(r.File)
	if err != nil {
		c.discard(r.Name, "definition unreadable", "error", err)
		return
	}
	if !info.ModTime().After(st.Touched) {
		return
	}

	fp, err := r.Fingerprint()
	if err != nil || fp != st.Fingerprint {
		c.discard(r.Name, "definition changed")
		return
	}

	slog.Debug("definition touched but unchanged", "recipe", r.Name)
	st.Touched = c.now()
	c.persist()
}

// Discards a stale status.
func (c *Cache) discard(name, reason string, args ...any) {
	slog.Info("recipe status reset", append([]any{"recipe", name, "reason", reason}, args...)...)
	c.Reset(name)
}

// Saves the cache, logging failures as warnings.
func (c *Cache) persist() {
	if err := c.Save(); err != nil {
		slog.Warn(err.Error(), "path", c.path)
	}
}

// Writes the cache to its status file atomically.
//
// In-memory caches are not written.
func (c *Cache) Save() error {
	if c.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(document{Version: formatVersion, Recipes: c.statuses}, "", "  ")
	if err != nil {
		return errs.Wrap(ErrSave, err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return errs.Wrap(ErrSave, err)
	}
	if err := fsutil.WriteFile(c.path, data, 0644); err != nil {
		return errs.Wrap(ErrSave, err)
	}
	return nil
}
