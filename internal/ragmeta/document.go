package ragmeta

import "strconv"

// Document is a unit of indexable content: a payload (text snippet or
// image-path) plus its metadata. Documents are immutable after
// construction; callers that need a variant (e.g. the retriever's payload
// rewrite before rerank) build a new value.
type Document struct {
	Payload  string
	Metadata map[string]any
}

// ID returns the document's stable id, or "" if unset.
func (d Document) ID() string {
	v, _ := d.Metadata[KeyID].(string)
	return v
}

// Source returns the document's source, or "" if unset.
func (d Document) Source() string {
	v, _ := d.Metadata[KeySource].(string)
	return v
}

// BuildKey assembles the stable-id key from an embed type, source,
// fingerprint sha and the optional page/chunk-or-image qualifiers, exactly
// as invariant 1 in the data model describes:
//
//	"<embed_type>::<source>::<fp_sha256_head>[::<page>][::<chunk_no>|::<image_no>]"
func BuildKey(embedType, source, fpSHA string, page *int, chunkOrImageNo *int) string {
	key := embedType + "::" + source + "::" + fpSHA
	if page != nil {
		key += "::" + strconv.Itoa(*page)
	}
	if chunkOrImageNo != nil {
		key += "::" + strconv.Itoa(*chunkOrImageNo)
	}
	return key
}
