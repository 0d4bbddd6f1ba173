package docstore

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// OffsetForPosition converts a line/character position into a byte offset.
// Positions past the end of a line clamp to the line end, lines past the
// last line clamp to the end of the text, and a character landing in the
// middle of a codepoint clamps to the preceding codepoint boundary.
func OffsetForPosition(text string, p Position, enc Encoding) int {
	lineStart := 0
	for line := 0; line < p.Line; line++ {
		nl := strings.IndexByte(text[lineStart:], '\n')
		if nl < 0 {
			return len(text)
		}
		lineStart += nl + 1
	}

	lineEnd := len(text)
	if nl := strings.IndexByte(text[lineStart:], '\n'); nl >= 0 {
		lineEnd = lineStart + nl
	}
	line := text[lineStart:lineEnd]

	if enc == EncodingUTF8 {
		off := p.Character
		if off >= len(line) {
			return lineEnd
		}
		// Clamp a mid-codepoint byte offset to the rune start.
		for off > 0 && !utf8.RuneStart(line[off]) {
			off--
		}
		return lineStart + off
	}

	units := 0
	for off, r := range line {
		// A character landing inside a surrogate pair clamps to the
		// rune's start.
		if p.Character < units+utf16.RuneLen(r) {
			return lineStart + off
		}
		units += utf16.RuneLen(r)
	}
	return lineEnd
}

// PositionForOffset converts a byte offset into a line/character position.
// Offsets out of bounds clamp to the text boundaries; an offset inside a
// codepoint counts from the preceding boundary.
func PositionForOffset(text string, offset int, enc Encoding) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	for offset > 0 && offset < len(text) && !utf8.RuneStart(text[offset]) {
		offset--
	}

	before := text[:offset]
	lineStart := 0
	line := strings.Count(before, "\n")
	if line > 0 {
		lineStart = strings.LastIndexByte(before, '\n') + 1
	}

	if enc == EncodingUTF8 {
		return Position{Line: line, Character: offset - lineStart}
	}

	units := 0
	for _, r := range before[lineStart:] {
		units += utf16.RuneLen(r)
	}
	return Position{Line: line, Character: units}
}
