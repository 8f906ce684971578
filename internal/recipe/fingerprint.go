package recipe

import (
	_ "crypto/sha256"
	"io"
	"os"

	"github.com/cruciblehq/kiln/internal/errs"
	"github.com/opencontainers/go-digest"
)

// Computes the content fingerprint of the recipe.
//
// The fingerprint covers the definition file followed by every patch file,
// in declaration order. Editing any of them changes the result.
func (r *Recipe) Fingerprint() (digest.Digest, error) {
	d := digest.Canonical.Digester()
	for _, path := range append([]string{r.File}, r.Patches...) {
		if err := hashFile(d.Hash(), path); err != nil {
			return "", errs.Wrap(ErrFingerprint, err)
		}
	}
	return d.Digest(), nil
}

// Streams a file into w.
func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
