package loader

import (
	"fmt"
	"strings"
)

// extractMarkdownText validates raw as structurally well-formed markdown
// (balanced fenced code blocks) and strips HTML comments, which would
// otherwise confuse the chunker's boundary detection. On malformed input
// it returns an error so the caller falls back to plain-text handling,
// per spec.md 4.E.1's "try a structured markdown element extractor; on
// any failure fall back to plain-text" rule. Heading/fence boundary
// detection is grounded on
// internal/documents/boundaries.go's isMarkdownBoundary.
func extractMarkdownText(raw string) (string, error) {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		out = append(out, stripHTMLComments(line))
	}
	if inFence {
		return "", fmt.Errorf("unterminated fenced code block")
	}
	return strings.Join(out, "\n"), nil
}

func stripHTMLComments(line string) string {
	for {
		start := strings.Index(line, "<!--")
		if start < 0 {
			return line
		}
		end := strings.Index(line[start:], "-->")
		if end < 0 {
			return line[:start]
		}
		line = line[:start] + line[start+end+3:]
	}
}

// isMarkdownBoundary reports whether line is a heading boundary, the
// markdown-specific case of internal/documents/boundaries.go's
// BoundaryDetector (fence lines are handled separately by
// extractMarkdownText since they must stay paired, not split on).
func isMarkdownBoundary(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

// splitMarkdownSections breaks text into sections at heading boundaries,
// so chunking never straddles a heading. Each section is chunked
// independently by Split.
func splitMarkdownSections(text string) []string {
	lines := strings.Split(text, "\n")
	var sections []string
	var buf strings.Builder
	for _, line := range lines {
		if isMarkdownBoundary(line) && buf.Len() > 0 {
			sections = append(sections, buf.String())
			buf.Reset()
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	if buf.Len() > 0 {
		sections = append(sections, buf.String())
	}
	return sections
}
