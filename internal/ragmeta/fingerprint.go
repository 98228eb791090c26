package ragmeta

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"manifold/internal/ragerr"
)

// Fingerprint identifies a file's content for change detection.
type Fingerprint struct {
	Size       int64
	Mtime      float64
	SHA256Head string
}

// DummyFingerprint is the sentinel used for sources without a real
// fingerprint (URLs). It always compares unequal to a real fingerprint but
// still marks the source as known.
var DummyFingerprint = Fingerprint{Size: -1, Mtime: -1, SHA256Head: ""}

// Equal reports whether two fingerprints are identical.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Size == o.Size && f.Mtime == o.Mtime && f.SHA256Head == o.SHA256Head
}

const defaultHeadBytes = 65536

// FileFingerprint stats path and hashes its first headBytes bytes. headBytes
// <= 0 uses the 64KiB default.
func FileFingerprint(path string, headBytes int) (Fingerprint, error) {
	if headBytes <= 0 {
		headBytes = defaultHeadBytes
	}

	st, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, ragerr.NewIOError("stat file", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, ragerr.NewIOError("open file", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, int64(headBytes)); err != nil && err != io.EOF {
		return Fingerprint{}, ragerr.NewIOError("read file head", err)
	}

	return Fingerprint{
		Size:       st.Size(),
		Mtime:      float64(st.ModTime().UnixNano()) / 1e9,
		SHA256Head: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Key renders the fingerprint's hash for inclusion in a stable-id key.
func (f Fingerprint) Key() string {
	return f.SHA256Head
}
