package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit_RespectsSizeBound(t *testing.T) {
	text := strings.Repeat("word ", 200)
	chunks := Split(text, 50, 10)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 50+len(" ")) // allows the boundary word to complete
	}
	assert.NotEmpty(t, chunks)
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	text := "first paragraph here.\n\nsecond paragraph here and it is longer than the first one by quite a bit."
	chunks := Split(text, 30, 0)
	assert.True(t, strings.HasPrefix(chunks[0], "first paragraph"))
}

func TestSplit_EmptyTextReturnsNoChunks(t *testing.T) {
	assert.Empty(t, Split("", 100, 10))
}

func TestSplit_OverlapCarriesBetweenChunks(t *testing.T) {
	text := strings.Repeat("abcdefghij", 10) // 100 chars, no whitespace
	chunks := Split(text, 20, 5)
	assert.Greater(t, len(chunks), 1)
	if len(chunks) > 1 {
		first := []rune(chunks[0])
		tail := string(first[len(first)-5:])
		assert.True(t, strings.HasPrefix(chunks[1], tail), "chunk 1 must start with the last 5 runes of chunk 0")
	}
}
