package knowledge

import (
	"regexp"
	"strings"
)

// Chunk is one indexed passage of a document.
type Chunk struct {
	Section string
	Text    string
}

var headerRe = regexp.MustCompile(`(?m)^#{1,3}\s+.+$`)

// ChunkMarkdown splits text at level 1-3 headers and then into pieces of
// at most size bytes overlapping by overlap bytes. Each chunk's text is
// prefixed with its header so a passage stays self-describing.
func ChunkMarkdown(text string, size, overlap int) []Chunk {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	emit := func(header, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		for _, piece := range splitText(body, size, overlap) {
			t := piece
			if header != "" {
				t = header + "\n\n" + piece
			}
			chunks = append(chunks, Chunk{Section: strings.TrimSpace(strings.TrimLeft(header, "#")), Text: t})
		}
	}

	header := ""
	last := 0
	for _, loc := range headerRe.FindAllStringIndex(text, -1) {
		emit(header, text[last:loc[0]])
		header = strings.TrimSpace(text[loc[0]:loc[1]])
		last = loc[1]
	}
	emit(header, text[last:])
	return chunks
}

// splitText prefers paragraph then sentence boundaries.
func splitText(text string, size, overlap int) []string {
	if len(text) <= size {
		return []string{text}
	}
	var out []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else if bp := strings.LastIndex(text[start:end], "\n\n"); bp > 0 {
			end = start + bp + 2
		} else if bp := strings.LastIndex(text[start:end], ". "); bp > 0 {
			end = start + bp + 2
		}
		end = runeBoundary(text, end)
		if end <= start {
			end = start + 1
			for end < len(text) && !isRuneStart(text[end]) {
				end++
			}
		}

		if piece := strings.TrimSpace(text[start:end]); piece != "" {
			out = append(out, piece)
		}
		if end >= len(text) {
			break
		}
		next := runeBoundary(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// runeBoundary moves i back to the start of the rune containing it.
func runeBoundary(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !isRuneStart(s[i]) {
		i--
	}
	return i
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
