package universal

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/blakesmith/ar"
	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/cruciblehq/kiln/internal/fsutil"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	_ "crypto/sha256"
)

// Length of the content hash prefix added to merged member names.
const hashPrefixLen = 12

// Name prefix of BSD long member names; the name follows the header.
const bsdLongName = "#1/"

// One object file extracted from an archive.
type member struct {
	arch   int           // Index of the architecture the member came from.
	seq    int           // Position in the source archive.
	name   string        // Member name, unique within its archive.
	data   []byte        // Member content.
	digest digest.Digest // Content hash, set by the hash phase.
}

// Objects sharing content, and the architectures that contain them.
type contribution struct {
	name  string
	data  []byte
	archs []int
}

// Merges the static archives at rel into the universal prefix.
//
// Every input archive is split into members, duplicate member names are
// renamed, and members are hashed. Members with equal content contribute
// once, under a hash-prefixed name, to the archive of the architecture
// subset that contains them. One archive is written and indexed per subset;
// more than one subset is fat-combined into the output.
func (m *Merger) mergeArchive(ctx context.Context, inputs []Input, output, rel string) error {
	members, err := m.splitAndHash(ctx, inputs, rel)
	if err != nil {
		return err
	}

	subsets := joinMembers(members)
	for i, in := range inputs {
		for _, sym := range findDuplicateSymbols(archContributions(subsets, i), m.symbols) {
			slog.Warn("duplicate symbol in merged archive", "path", rel, "arch", in.Arch, "symbol", sym)
		}
	}

	tmp, err := os.MkdirTemp("", "kiln-archive-")
	if err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	defer os.RemoveAll(tmp)

	keys := slices.Sorted(maps.Keys(subsets))
	paths := make([]string, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.jobs)
	for i, key := range keys {
		paths[i] = filepath.Join(tmp, key, filepath.Base(rel))
		slog.Debug("writing subset archive", "path", rel, "subset", subsetName(inputs, key), "members", len(subsets[key]))
		g.Go(func() error {
			if err := os.MkdirAll(filepath.Dir(paths[i]), 0755); err != nil {
				return errs.Wrap(ErrMerge, err)
			}
			if err := writeArchive(paths[i], subsets[key]); err != nil {
				return err
			}
			return m.toolchain.Index(gctx, paths[i])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	dst := filepath.Join(output, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	if len(paths) == 1 {
		return fsutil.CopyFile(paths[0], dst)
	}
	return m.toolchain.Combine(ctx, dst, paths)
}

// Extracts and hashes the members of every input archive.
//
// Splitting runs one worker per archive, hashing runs on a pool of workers
// fed by the splitters, and a collector gathers the results. Members are
// returned in architecture and archive order.
func (m *Merger) splitAndHash(ctx context.Context, inputs []Input, rel string) ([]member, error) {
	g, gctx := errgroup.WithContext(ctx)
	raw := make(chan member)
	hashed := make(chan member)

	g.Go(func() error {
		defer close(raw)
		sg, sctx := errgroup.WithContext(gctx)
		sg.SetLimit(m.jobs)
		for i, in := range inputs {
			sg.Go(func() error {
				return splitArchive(sctx, filepath.Join(in.Dir, rel), i, raw)
			})
		}
		return sg.Wait()
	})

	g.Go(func() error {
		defer close(hashed)
		hg, hctx := errgroup.WithContext(gctx)
		for range m.jobs {
			hg.Go(func() error {
				for mem := range raw {
					mem.digest = digest.FromBytes(mem.data)
					select {
					case hashed <- mem:
					case <-hctx.Done():
						return hctx.Err()
					}
				}
				return nil
			})
		}
		return hg.Wait()
	})

	var members []member
	g.Go(func() error {
		for mem := range hashed {
			members = append(members, mem)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(members, func(a, b member) int {
		if a.arch != b.arch {
			return a.arch - b.arch
		}
		return a.seq - b.seq
	})
	return members, nil
}

// Sends the members of the archive at path to out.
func splitArchive(ctx context.Context, path string, arch int, out chan<- member) error {
	members, err := readArchive(path)
	if err != nil {
		return err
	}
	for i, mem := range members {
		mem.arch = arch
		mem.seq = i
		select {
		case out <- mem:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Reads the object members of a static archive.
//
// Symbol tables and the GNU long name table are dropped. Duplicate member
// names are renamed so that every returned name is unique.
func readArchive(path string) ([]member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(ErrMerge, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic := make([]byte, len(archiveMagic))
	if _, err := io.ReadFull(br, magic); err != nil || string(magic) != archiveMagic {
		return nil, errs.Wrapf(ErrArchive, "%s: missing archive magic", path)
	}

	rd := ar.NewReader(io.MultiReader(bytes.NewReader(magic), br))
	var (
		members   []member
		longNames []byte
		seen      = make(map[string]int)
	)
	for {
		hdr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrapf(ErrArchive, "%s: %v", path, err)
		}

		data, err := io.ReadAll(rd)
		if err != nil {
			return nil, errs.Wrapf(ErrArchive, "%s: %v", path, err)
		}

		name := hdr.Name
		switch {
		case name == "/" || name == "/SYM64/" || strings.HasPrefix(name, "__.SYMDEF"):
			continue
		case name == "//":
			longNames = data
			continue
		case strings.HasPrefix(name, bsdLongName):
			n, err := strconv.Atoi(name[len(bsdLongName):])
			if err != nil || n > len(data) {
				return nil, errs.Wrapf(ErrArchive, "%s: bad member name %q", path, name)
			}
			name = strings.TrimRight(string(data[:n]), "\x00")
			data = data[n:]
			if strings.HasPrefix(name, "__.SYMDEF") {
				continue
			}
		case strings.HasPrefix(name, "/"):
			off, err := strconv.Atoi(name[1:])
			if err != nil || off >= len(longNames) {
				return nil, errs.Wrapf(ErrArchive, "%s: bad member name %q", path, name)
			}
			name, _, _ = strings.Cut(string(longNames[off:]), "/\n")
		default:
			name = strings.TrimSuffix(name, "/")
		}

		members = append(members, member{name: uniqueName(name, seen), data: data})
	}
	return members, nil
}

// Returns name, or name with a counter before its extension if an earlier
// member already used it.
func uniqueName(name string, seen map[string]int) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	candidate := fmt.Sprintf("%s.%d%s", strings.TrimSuffix(name, ext), n, ext)
	if _, taken := seen[candidate]; taken {
		return uniqueName(candidate, seen)
	}
	seen[candidate] = 1
	return candidate
}

// Groups members by content and assigns each distinct object to the subset
// of architectures containing it.
//
// The result maps a subset key to its contributions in first-seen order.
func joinMembers(members []member) map[string][]contribution {
	byDigest := make(map[digest.Digest]*contribution)
	var order []digest.Digest
	for _, mem := range members {
		c, ok := byDigest[mem.digest]
		if !ok {
			c = &contribution{
				name: mem.digest.Encoded()[:hashPrefixLen] + "-" + mem.name,
				data: mem.data,
			}
			byDigest[mem.digest] = c
			order = append(order, mem.digest)
		}
		if !slices.Contains(c.archs, mem.arch) {
			c.archs = append(c.archs, mem.arch)
		}
	}

	subsets := make(map[string][]contribution)
	for _, d := range order {
		c := byDigest[d]
		slices.Sort(c.archs)
		key := subsetKey(c.archs)
		subsets[key] = append(subsets[key], *c)
	}
	return subsets
}

// Returns the contributions that end up in the slice of one architecture:
// those of every subset containing it.
func archContributions(subsets map[string][]contribution, arch int) []contribution {
	var out []contribution
	for _, key := range slices.Sorted(maps.Keys(subsets)) {
		for _, c := range subsets[key] {
			if slices.Contains(c.archs, arch) {
				out = append(out, c)
			}
		}
	}
	return out
}

// Returns the key of an architecture subset, e.g. "0+2".
func subsetKey(archs []int) string {
	parts := make([]string, len(archs))
	for i, a := range archs {
		parts[i] = strconv.Itoa(a)
	}
	return strings.Join(parts, "+")
}

// Returns the architecture names of a subset key, e.g. "arm64+x86_64".
func subsetName(inputs []Input, key string) string {
	var names []string
	for _, part := range strings.Split(key, "+") {
		if i, err := strconv.Atoi(part); err == nil && i < len(inputs) {
			names = append(names, inputs[i].Arch)
		}
	}
	return strings.Join(names, "+")
}

// Writes contributions as a BSD-format archive.
//
// Member names are stored after the header so that long hash-prefixed names
// survive. Timestamps and ownership are zeroed for reproducible output.
func writeArchive(path string, contribs []contribution) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w := ar.NewWriter(bw)
	if err := w.WriteGlobalHeader(); err != nil {
		return errs.Wrap(ErrMerge, err)
	}

	for _, c := range contribs {
		name := []byte(c.name)
		if pad := len(name) % 8; pad != 0 {
			name = append(name, make([]byte, 8-pad)...)
		}

		// The writer pads each call separately, so the entry goes in one write.
		entry := append(name, c.data...)
		hdr := &ar.Header{
			Name:    bsdLongName + strconv.Itoa(len(name)),
			ModTime: time.Unix(0, 0),
			Mode:    0644,
			Size:    int64(len(entry)),
		}
		if err := w.WriteHeader(hdr); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
		if _, err := w.Write(entry); err != nil {
			return errs.Wrap(ErrMerge, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return errs.Wrap(ErrMerge, err)
	}
	return f.Close()
}
