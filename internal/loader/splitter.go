// Package loader implements the file and HTML content loaders
// (E. Loaders): source discovery, chunking, and Document production for
// the ingest orchestrator.
package loader

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most size runes, with overlap
// runes carried over between consecutive chunks. Splitting is
// character-recursive: paragraph boundaries ("\n\n") are preferred, then
// line boundaries ("\n"), then word boundaries (" "), falling back to a
// hard character cut only when no separator fits within size. Grounded
// on internal/documents/splitter.go's streaming boundary-detection idiom
// and internal/rag/chunker/chunker.go's whitespace-aware fixedChunk,
// generalized to the recursive separator cascade spec.md 4.E requires.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = bestSplitPoint(runes, start, end)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// bestSplitPoint looks for the latest paragraph, then line, then word
// boundary in runes[start:end], falling back to the hard end cut.
func bestSplitPoint(runes []rune, start, end int) int {
	window := string(runes[start:end])
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > 0 {
			runeOffset := utf8.RuneCountInString(window[:i])
			return start + runeOffset + utf8.RuneCountInString(sep)
		}
	}
	return end
}
