package universal

import (
	"bytes"
	"context"
	"debug/macho"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/cruciblehq/kiln/internal/fsutil"
)

// An architecture's install prefix.
type Input struct {
	Arch string // Architecture name, e.g. "arm64".
	Dir  string // Absolute prefix directory.
}

// Fuses per-architecture trees into a universal tree.
type Merger struct {
	toolchain Toolchain
	jobs      int        // Worker pool size for archive merges.
	symbols   symbolFunc // Symbol reader for the duplicate check.
}

// Creates a merger using toolchain for binary operations. Jobs bounds the
// archive merge workers; zero selects the CPU count.
func NewMerger(toolchain Toolchain, jobs int) *Merger {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	return &Merger{
		toolchain: toolchain,
		jobs:      jobs,
		symbols:   objectSymbols,
	}
}

// Merges the input prefixes into output.
//
// Paths present in every input are merged by content type. Paths present in
// only some inputs are merged among those inputs, or copied as-is when a
// single input has them.
func (m *Merger) Merge(ctx context.Context, inputs []Input, output string) error {
	if len(inputs) == 0 {
		return errs.Wrapf(ErrInvalidGroup, "no inputs to merge")
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	slog.Debug("merging universal tree", "output", output, "inputs", len(inputs))
	return m.mergeDir(ctx, inputs, output, "")
}

// Merges the entries of directory rel.
func (m *Merger) mergeDir(ctx context.Context, inputs []Input, output, rel string) error {
	owners := make(map[string][]int)
	for i, in := range inputs {
		entries, err := os.ReadDir(filepath.Join(in.Dir, rel))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		for _, e := range entries {
			owners[e.Name()] = append(owners[e.Name()], i)
		}
	}

	// Bucket names by the exact subset of inputs containing them.
	buckets := make(map[string][]string)
	subsets := make(map[string][]int)
	for _, name := range slices.Sorted(maps.Keys(owners)) {
		key := subsetKey(owners[name])
		buckets[key] = append(buckets[key], name)
		subsets[key] = owners[name]
	}

	for _, key := range slices.Sorted(maps.Keys(buckets)) {
		subset := make([]Input, len(subsets[key]))
		for i, idx := range subsets[key] {
			subset[i] = inputs[idx]
		}

		for _, name := range buckets[key] {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(rel, name)
			if len(subset) == 1 {
				if err := copyTree(filepath.Join(subset[0].Dir, path), filepath.Join(output, path)); err != nil {
					return err
				}
				continue
			}
			if err := m.mergePath(ctx, subset, output, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// Merges one path present in every input.
func (m *Merger) mergePath(ctx context.Context, inputs []Input, output, rel string) error {
	actions := make(map[string]MergeAction, len(inputs))
	var action MergeAction
	for i, in := range inputs {
		a, err := Classify(filepath.Join(in.Dir, rel))
		if err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		actions[in.Arch] = a
		if i == 0 {
			action = a
		} else if a != action {
			return &TypeMismatchError{Path: rel, Actions: actions}
		}
	}

	slog.Debug("merge", "path", rel, "action", action.String())

	dst := filepath.Join(output, rel)
	switch action {
	case ActionRecurse:
		if err := os.MkdirAll(dst, 0755); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		return m.mergeDir(ctx, inputs, output, rel)
	case ActionLink:
		return relink(inputs, output, rel)
	case ActionMergeBinary:
		return m.mergeBinary(ctx, inputs, output, rel)
	case ActionMergeArchive:
		return m.mergeArchive(ctx, inputs, output, rel)
	case ActionCopyRewrite:
		return rewriteText(inputs, output, rel)
	case ActionSkip:
		return nil
	default:
		if err := fsutil.CopyFile(filepath.Join(inputs[0].Dir, rel), dst); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		return nil
	}
}

// Fat-combines per-architecture Mach-O binaries.
//
// Each input is copied to a private location, its load paths inside an
// architecture prefix are pointed at the universal prefix, and the copies
// are combined into the output.
func (m *Merger) mergeBinary(ctx context.Context, inputs []Input, output, rel string) error {
	tmp, err := os.MkdirTemp("", "kiln-binary-")
	if err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	defer os.RemoveAll(tmp)

	thins := make([]string, len(inputs))
	for i, in := range inputs {
		thin := filepath.Join(tmp, in.Arch, filepath.Base(rel))
		if err := fsutil.CopyFile(filepath.Join(in.Dir, rel), thin); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		for _, lib := range loadPaths(thin) {
			if rewritten, ok := rebase(lib, inputs, output); ok {
				if err := m.toolchain.ChangeLoadPath(ctx, thin, lib, rewritten); err != nil {
					return err
				}
			}
		}
		thins[i] = thin
	}

	dst := filepath.Join(output, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	return m.toolchain.Combine(ctx, dst, thins)
}

// Returns the dynamic libraries a Mach-O file loads. Unreadable files load
// nothing.
func loadPaths(path string) []string {
	f, err := macho.Open(path)
	if err != nil {
		slog.Debug("not a thin Mach-O file, keeping load paths", "path", path)
		return nil
	}
	defer f.Close()

	libs, err := f.ImportedLibraries()
	if err != nil {
		return nil
	}
	return libs
}

// Maps a path inside any input prefix to the same path in the output.
func rebase(path string, inputs []Input, output string) (string, bool) {
	for _, in := range inputs {
		if path == in.Dir {
			return output, true
		}
		if rest, ok := strings.CutPrefix(path, in.Dir+string(filepath.Separator)); ok {
			return filepath.Join(output, rest), true
		}
	}
	return "", false
}

// Copies the first input's text file, replacing every architecture prefix
// with the output prefix.
func rewriteText(inputs []Input, output, rel string) error {
	src := filepath.Join(inputs[0].Dir, rel)
	data, err := os.ReadFile(src)
	if err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return errs.Wrap(ErrMerge, err)
	}

	for _, in := range inputs {
		data = bytes.ReplaceAll(data, []byte(in.Dir), []byte(output))
	}

	dst := filepath.Join(output, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	if err := fsutil.WriteFile(dst, data, info.Mode().Perm()); err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	return nil
}

// Recreates the first input's symlink in the output.
//
// Absolute targets inside an architecture prefix are made relative to the
// link so that the merged tree stays relocatable.
func relink(inputs []Input, output, rel string) error {
	target, err := os.Readlink(filepath.Join(inputs[0].Dir, rel))
	if err != nil {
		return errs.Wrap(ErrMerge, err)
	}

	dst := filepath.Join(output, rel)
	if filepath.IsAbs(target) {
		if mapped, ok := rebase(target, inputs, output); ok {
			if r, err := filepath.Rel(filepath.Dir(dst), mapped); err == nil {
				target = r
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	if err := fsutil.Symlink(target, dst); err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	return nil
}

// Copies a file, symlink, or directory tree as-is.
func copyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return errs.Wrap(ErrMerge, err)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		if err := fsutil.Symlink(target, dst); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
	case info.IsDir():
		if err := os.MkdirAll(dst, info.Mode().Perm()|0700); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		for _, e := range entries {
			if err := copyTree(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
				return err
			}
		}
	case info.Mode().IsRegular():
		if err := fsutil.CopyFile(src, dst); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
	}
	return nil
}
