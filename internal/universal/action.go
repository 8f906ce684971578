package universal

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"slices"
	"unicode/utf8"
)

// Disposition of one path during a universal merge.
type MergeAction int

const (
	ActionCopy         MergeAction = iota // Copy the first architecture's file.
	ActionCopyRewrite                     // Copy text, rewriting architecture prefixes.
	ActionMergeBinary                     // Fat-combine Mach-O binaries.
	ActionMergeArchive                    // Merge static archives object by object.
	ActionLink                            // Recreate a symlink.
	ActionSkip                            // Leave out of the merged tree.
	ActionRecurse                         // Merge a directory.
)

func (a MergeAction) String() string {
	switch a {
	case ActionCopy:
		return "copy"
	case ActionCopyRewrite:
		return "copy-and-rewrite-paths"
	case ActionMergeBinary:
		return "merge-binary"
	case ActionMergeArchive:
		return "merge-archive"
	case ActionLink:
		return "link"
	case ActionSkip:
		return "skip"
	case ActionRecurse:
		return "recurse"
	default:
		return "unknown"
	}
}

// Bytes inspected to tell text from binary content.
const sniffSize = 8192

// Magic of a static archive.
const archiveMagic = "!<arch>\n"

// Mach-O thin and fat magic numbers, as read big-endian from the first four
// bytes of a file.
var machoMagics = []uint32{
	0xfeedface, 0xcefaedfe, // 32-bit
	0xfeedfacf, 0xcffaedfe, // 64-bit
	0xcafebabe, 0xbebafeca, // fat
}

// Java class files share the fat magic. A fat header with more slices than
// this is assumed not to be Mach-O.
const maxFatArchs = 20

// Detects the merge action of path from its type and content.
func Classify(path string) (MergeAction, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return ActionLink, nil
	case info.IsDir():
		return ActionRecurse, nil
	case !info.Mode().IsRegular():
		return ActionSkip, nil
	case filepath.Ext(path) == ".la":
		return ActionSkip, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, err
	}
	return classifyContent(head[:n]), nil
}

// Detects the merge action of a regular file from its leading bytes.
func classifyContent(head []byte) MergeAction {
	if bytes.HasPrefix(head, []byte(archiveMagic)) {
		return ActionMergeArchive
	}
	if len(head) >= 4 {
		magic := binary.BigEndian.Uint32(head)
		if slices.Contains(machoMagics, magic) && !isClassFile(head, magic) {
			return ActionMergeBinary
		}
	}
	if len(head) > 0 && !bytes.Contains(head, []byte{0}) && utf8.Valid(trimPartialRune(head)) {
		return ActionCopyRewrite
	}
	return ActionCopy
}

// Whether a fat magic number actually starts a Java class file.
func isClassFile(head []byte, magic uint32) bool {
	if magic != 0xcafebabe || len(head) < 8 {
		return false
	}
	return binary.BigEndian.Uint32(head[4:]) > maxFatArchs
}

// Drops a multi-byte sequence cut off at the end of a sniffed buffer.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size != 1 {
			break
		}
		b = b[:len(b)-1]
	}
	return b
}
