package universal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyContent(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want MergeAction
	}{
		{"archive", []byte("!<arch>\n#1/8"), ActionMergeArchive},
		{"thin macho", fakeMachO, ActionMergeBinary},
		{"fat macho", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 2}, ActionMergeBinary},
		{"java class", []byte{0xca, 0xfe, 0xba, 0xbe, 0, 0, 0, 52}, ActionCopy},
		{"text", []byte("prefix=/opt/arm64\n"), ActionCopyRewrite},
		{"utf8 text", []byte("caf\xc3\xa9\n"), ActionCopyRewrite},
		{"binary data", []byte{'P', 'N', 'G', 0, 1, 2}, ActionCopy},
		{"empty", nil, ActionCopy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyContent(tt.head))
		})
	}
}

func TestClassifyFileTypes(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"lib/libfoo.la": "libtool text", "lib/libfoo.so": "text"})
	require.NoError(t, os.Symlink("libfoo.so", filepath.Join(dir, "lib", "libfoo.so.1")))

	tests := map[string]MergeAction{
		"lib":             ActionRecurse,
		"lib/libfoo.la":   ActionSkip,
		"lib/libfoo.so":   ActionCopyRewrite,
		"lib/libfoo.so.1": ActionLink,
	}
	for rel, want := range tests {
		got, err := Classify(filepath.Join(dir, rel))
		require.NoError(t, err)
		assert.Equal(t, want, got, rel)
	}
}

func TestMergeTree(t *testing.T) {
	root := t.TempDir()
	arm := filepath.Join(root, "arm64")
	x86 := filepath.Join(root, "x86_64")
	out := filepath.Join(root, "universal")

	writeTree(t, arm, map[string]string{
		"lib/pkgconfig/foo.pc": "prefix=" + arm + "\nlibdir=" + arm + "/lib\n",
		"lib/libfoo.la":        "libdir='" + arm + "/lib'\n",
		"include/arm-only.h":   "#define ARM_PREFIX \"" + arm + "\"\n",
		"share/data.bin":       "data\x00arm",
	})
	writeTree(t, x86, map[string]string{
		"lib/pkgconfig/foo.pc":  "prefix=" + x86 + "\nlibdir=" + x86 + "/lib\n",
		"lib/libfoo.la":         "libdir='" + x86 + "/lib'\n",
		"share/x86/extra/a.txt": "x86 only",
		"share/data.bin":        "data\x00x86",
	})
	for _, dir := range []string{arm, x86} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "libfoo.1.dylib"), fakeMachO, 0755))
		require.NoError(t, os.Symlink(filepath.Join(dir, "lib", "libfoo.1.dylib"), filepath.Join(dir, "lib", "libfoo.dylib")))
	}

	tc := newFakeToolchain()
	inputs := []Input{{Arch: "arm64", Dir: arm}, {Arch: "x86_64", Dir: x86}}
	require.NoError(t, NewMerger(tc, 2).Merge(context.Background(), inputs, out))

	pc, err := os.ReadFile(filepath.Join(out, "lib", "pkgconfig", "foo.pc"))
	require.NoError(t, err)
	assert.Equal(t, "prefix="+out+"\nlibdir="+out+"/lib\n", string(pc))

	// Libtool archives are left out.
	_, err = os.Lstat(filepath.Join(out, "lib", "libfoo.la"))
	assert.True(t, os.IsNotExist(err))

	// Single-architecture leftovers are copied as-is.
	h, err := os.ReadFile(filepath.Join(out, "include", "arm-only.h"))
	require.NoError(t, err)
	assert.Contains(t, string(h), arm)
	extra, err := os.ReadFile(filepath.Join(out, "share", "x86", "extra", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x86 only", string(extra))

	// Binary data comes from the first architecture.
	bin, err := os.ReadFile(filepath.Join(out, "share", "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, "data\x00arm", string(bin))

	// Binaries are fat-combined and absolute links become relative.
	dylib := filepath.Join(out, "lib", "libfoo.1.dylib")
	assert.Len(t, tc.combined[dylib], 2)
	target, err := os.Readlink(filepath.Join(out, "lib", "libfoo.dylib"))
	require.NoError(t, err)
	assert.Equal(t, "libfoo.1.dylib", target)
}

func TestMergeTypeMismatch(t *testing.T) {
	root := t.TempDir()
	arm := filepath.Join(root, "arm64")
	x86 := filepath.Join(root, "x86_64")

	writeTree(t, arm, map[string]string{"bin/tool": "#!/bin/sh\n"})
	require.NoError(t, os.MkdirAll(filepath.Join(x86, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(x86, "bin", "tool"), fakeMachO, 0755))

	inputs := []Input{{Arch: "arm64", Dir: arm}, {Arch: "x86_64", Dir: x86}}
	err := NewMerger(newFakeToolchain(), 1).Merge(context.Background(), inputs, filepath.Join(root, "out"))
	require.Error(t, err)

	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, filepath.Join("bin", "tool"), mismatch.Path)
	assert.Equal(t, ActionCopyRewrite, mismatch.Actions["arm64"])
	assert.Equal(t, ActionMergeBinary, mismatch.Actions["x86_64"])
	assert.True(t, errdefs.IsFailedPrecondition(err))
}

func TestRebase(t *testing.T) {
	inputs := []Input{{Arch: "arm64", Dir: "/p/arm64"}, {Arch: "x86_64", Dir: "/p/x86_64"}}

	got, ok := rebase("/p/x86_64/lib/libz.dylib", inputs, "/p/universal")
	assert.True(t, ok)
	assert.Equal(t, "/p/universal/lib/libz.dylib", got)

	_, ok = rebase("/usr/lib/libSystem.B.dylib", inputs, "/p/universal")
	assert.False(t, ok)

	_, ok = rebase("/p/arm64-other/lib", inputs, "/p/universal")
	assert.False(t, ok)
}

func TestMergeRequiresInputs(t *testing.T) {
	err := NewMerger(newFakeToolchain(), 1).Merge(context.Background(), nil, t.TempDir())
	assert.True(t, errdefs.IsInvalidArgument(err))
}
