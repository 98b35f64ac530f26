package bridge

import (
	"strings"
	"unicode"
)

// responseChunker splits an oversize response body into transport-sized
// pieces, breaking at paragraph, then sentence, then word boundaries
// before falling back to a hard cut, and keeping markdown fences intact
// across a split where possible.
type responseChunker struct {
	maxChars int
}

func newResponseChunker(maxChars int) *responseChunker {
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &responseChunker{maxChars: maxChars}
}

// Split divides body into chunks no longer than maxChars.
func (c *responseChunker) Split(body string) []string {
	if body == "" {
		return nil
	}
	if len(body) <= c.maxChars {
		return []string{body}
	}

	var chunks []string
	remaining := body
	for len(remaining) > c.maxChars {
		idx := c.breakPoint(remaining)
		if idx <= 0 {
			idx = c.maxChars
		}
		piece := strings.TrimRightFunc(remaining[:idx], unicode.IsSpace)
		if piece != "" {
			chunks = append(chunks, closeFenceIfOpen(piece))
		}
		next := strings.TrimLeftFunc(remaining[idx:], unicode.IsSpace)
		if fence := openFence(piece); fence != "" {
			next = fence + "\n" + next
		}
		remaining = next
	}
	if remaining = strings.TrimSpace(remaining); remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// breakPoint finds the best split position within the first maxChars
// bytes of text: paragraph break, then newline, then sentence ending,
// then word boundary, then a hard cut.
func (c *responseChunker) breakPoint(text string) int {
	if len(text) <= c.maxChars {
		return len(text)
	}
	window := text[:c.maxChars]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1
	}
	for _, ending := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(window, ending); idx > 0 {
			return idx + 1
		}
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}
	return c.maxChars
}

// openFence returns the fence marker ("```" or "~~~") if piece ends
// inside an unclosed code block, else "".
func openFence(piece string) string {
	var fence string
	lines := strings.Split(piece, "\n")
	var open bool
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			if !open {
				open = true
				fence = trimmed[:3]
			} else {
				open = false
			}
		}
	}
	if open {
		return fence
	}
	return ""
}

// closeFenceIfOpen appends a closing fence to piece if it ends inside
// an unclosed code block, so each chunk renders as valid markdown on
// its own.
func closeFenceIfOpen(piece string) string {
	fence := openFence(piece)
	if fence == "" {
		return piece
	}
	if strings.HasSuffix(piece, "\n") {
		return piece + fence
	}
	return piece + "\n" + fence
}
