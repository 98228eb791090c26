package ragmeta

import (
	"regexp"
)

// SpaceKeyPattern is the grammar every sanitised space key must satisfy,
// including on empty input (Testable Property 8).
var SpaceKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{1,510}[A-Za-z0-9]$`)

const maxSpaceKeyLen = 512

var disallowedChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func isAlnum(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// SpaceKey builds the raw, unsanitised key for a provider/model/embed_type
// triple, then sanitises it.
func SpaceKey(provider, model, embedType string) string {
	return Sanitize(provider + "__" + model + "__" + embedType)
}

// Sanitize transforms an arbitrary string into one matching SpaceKeyPattern:
// disallowed bytes become '_', the ends are forced alphanumeric, the result
// is padded to at least length 3 and truncated to 512.
func Sanitize(raw string) string {
	if raw == "" {
		return "000"
	}

	s := disallowedChar.ReplaceAllString(raw, "_")

	if len(s) > maxSpaceKeyLen {
		s = s[:maxSpaceKeyLen]
	}

	for len(s) < 3 {
		s += "0"
	}

	b := []byte(s)
	if !isAlnum(b[0]) {
		b[0] = '0'
	}
	if !isAlnum(b[len(b)-1]) {
		b[len(b)-1] = '0'
	}

	return string(b)
}
