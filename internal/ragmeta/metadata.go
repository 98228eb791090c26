package ragmeta

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"manifold/internal/ragerr"
)

// EmbedType values, per the space-key discipline: a vector's embed type is
// part of what keeps incompatible vectors from sharing a space.
const (
	EmbedTypeText  = "text"
	EmbedTypeImage = "image"
)

// Metadata keys, matching the wire/schema vocabulary.
const (
	KeyID          = "id"
	KeySource      = "source"
	KeyBaseSource  = "base_source"
	KeySpaceKey    = "space_key"
	KeyEmbedType   = "embed_type"
	KeyFPSize      = "fingerprint_size"
	KeyFPMtime     = "fingerprint_mtime"
	KeyFPSHA256    = "fingerprint_sha256_head"
	KeyPage        = "page"
	KeyChunkNo     = "chunk_no"
	KeyImageNo     = "image_no"
	// KeyCaption carries an optional human-readable caption for an image
	// document, used to rewrite its payload to text before rerank.
	KeyCaption = "caption"
)

// FingerprintKeys is the set of metadata keys that together make up a
// document's fingerprint.
var FingerprintKeys = []string{KeyFPSize, KeyFPMtime, KeyFPSHA256}

// EntityKind names one of the document kinds the loaders produce. Each kind
// requires a different subset of metadata keys, mirroring the original's
// dataclass hierarchy compressed into a table (Design Note
// "Dataclass→schema").
type EntityKind string

const (
	KindTextFile  EntityKind = "text_file"
	KindImageFile EntityKind = "image_file"
	KindPDFText   EntityKind = "pdf_text"
	KindPDFImage  EntityKind = "pdf_image"
	KindWebText   EntityKind = "web_text"
	KindWebImage  EntityKind = "web_image"
)

var basicKeys = []string{KeyID, KeySource, KeySpaceKey, KeyEmbedType, KeyBaseSource}

// requiredKeys maps each entity kind to its full required-key set, built
// from the basic keys every document needs plus the kind-specific keys.
var requiredKeys = map[EntityKind][]string{
	KindTextFile:  append(append([]string{}, basicKeys...), KeyFPSize, KeyFPMtime, KeyFPSHA256, KeyChunkNo),
	KindImageFile: append(append([]string{}, basicKeys...), KeyFPSize, KeyFPMtime, KeyFPSHA256),
	KindPDFText:   append(append([]string{}, basicKeys...), KeyFPSize, KeyFPMtime, KeyFPSHA256, KeyPage, KeyChunkNo),
	KindPDFImage:  append(append([]string{}, basicKeys...), KeyFPSize, KeyFPMtime, KeyFPSHA256, KeyPage, KeyImageNo),
	KindWebText:   append(append([]string{}, basicKeys...), KeyChunkNo),
	KindWebImage:  append(append([]string{}, basicKeys...), KeyImageNo),
}

func isStillDefault(v any) (bool, error) {
	switch val := v.(type) {
	case int:
		return val == -1, nil
	case int64:
		return val == -1, nil
	case float64:
		return val == -1, nil
	case string:
		return val == "", nil
	default:
		return false, fmt.Errorf("unsupported type for default detection: %T", v)
	}
}

// AssertRequiredKeys verifies that meta carries every key kind requires,
// each set to a non-sentinel value. base_source is exempt from the
// non-default check: it is legitimately empty whenever source has no
// distinct parent.
func AssertRequiredKeys(meta map[string]any, kind EntityKind) error {
	req, ok := requiredKeys[kind]
	if !ok {
		return ragerr.NewInvalidMetadataError("assert required keys", fmt.Errorf("unknown entity kind %q", kind))
	}

	var missing []string
	for _, key := range req {
		if _, present := meta[key]; !present {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return ragerr.NewInvalidMetadataError("assert required keys",
			fmt.Errorf("missing required metadata keys: %s", strings.Join(missing, ", ")))
	}

	var notSet []string
	for _, key := range req {
		if key == KeyBaseSource {
			continue
		}
		def, err := isStillDefault(meta[key])
		if err != nil {
			return ragerr.NewInvalidMetadataError("assert required keys", fmt.Errorf("invalid metadata type for %s: %w", key, err))
		}
		if def {
			notSet = append(notSet, key)
		}
	}
	if len(notSet) > 0 {
		sort.Strings(notSet)
		return ragerr.NewInvalidMetadataError("assert required keys",
			fmt.Errorf("metadata keys not set: %s", strings.Join(notSet, ", ")))
	}

	return nil
}

// ExtractFingerprint pulls the fingerprint triple out of a metadata map. If
// any fingerprint key is absent, it returns the dummy sentinel, matching
// the URL-source contract.
//
// The size field is read as int64, float64, or json.Number: a freshly
// ingested document carries an int64, but one read back from a backend
// that round-trips metadata through JSON/JSONB (pgvector, Qdrant, Chroma)
// decodes numbers as float64 (or json.Number, depending on decoder
// settings), never int64.
func ExtractFingerprint(meta map[string]any) Fingerprint {
	size, ok1 := asInt64(meta[KeyFPSize])
	mtime, ok2 := meta[KeyFPMtime].(float64)
	sha, ok3 := meta[KeyFPSHA256].(string)
	if !ok1 || !ok2 || !ok3 {
		return DummyFingerprint
	}
	return Fingerprint{Size: size, Mtime: mtime, SHA256Head: sha}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
