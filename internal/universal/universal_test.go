package universal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Fake Mach-O content: a 64-bit little-endian magic followed by junk.
var fakeMachO = []byte{0xcf, 0xfa, 0xed, 0xfe, 0x07, 0x00, 0x00, 0x01, 'j', 'u', 'n', 'k'}

// Records toolchain invocations and concatenates inputs on combine.
type fakeToolchain struct {
	mu       sync.Mutex
	combined map[string][]string   // Output path to input paths.
	members  map[string][][]string // Output path to member names of each input archive.
	indexed  int
	changes  [][3]string
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{
		combined: make(map[string][]string),
		members:  make(map[string][][]string),
	}
}

func (f *fakeToolchain) Combine(ctx context.Context, output string, inputs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out bytes.Buffer
	var names [][]string
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		out.Write(data)

		if bytes.HasPrefix(data, []byte(archiveMagic)) {
			members, err := readArchive(in)
			if err != nil {
				return err
			}
			var n []string
			for _, m := range members {
				n = append(n, m.name)
			}
			names = append(names, n)
		}
	}

	f.combined[output] = inputs
	f.members[output] = names
	return os.WriteFile(output, out.Bytes(), 0755)
}

func (f *fakeToolchain) ChangeLoadPath(ctx context.Context, file, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, [3]string{file, from, to})
	return nil
}

func (f *fakeToolchain) Index(ctx context.Context, archive string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed++
	return nil
}

// Writes files under root. Keys are slash-separated relative paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// Writes a BSD archive of the given name/content pairs.
func writeTestArchive(t *testing.T, path string, members ...string) {
	t.Helper()
	require.Zero(t, len(members)%2)

	var contribs []contribution
	for i := 0; i < len(members); i += 2 {
		contribs = append(contribs, contribution{name: members[i], data: []byte(members[i+1])})
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, writeArchive(path, contribs))
}

// Returns the member names of an archive without their hash prefixes.
func stripHashes(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		_, rest, _ := strings.Cut(n, "-")
		out[i] = rest
	}
	return out
}
