// Package extract locates email-address tokens and their byte spans in
// document text.
//
// Two document shapes are supported. Header-style documents (a compose
// buffer with To:/Cc:/... lines at the top) are scanned only inside the
// values of recipient headers, including folded continuation lines. All
// other documents are plain or markdown free text and are scanned whole.
package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Shape classifies a document for region detection.
type Shape int

const (
	// ShapeFreeText scans the entire document.
	ShapeFreeText Shape = iota

	// ShapeHeader scans only recipient header values at the top of the
	// document.
	ShapeHeader
)

// Token is an address found in a document: the bare address, its byte
// span, the display name wrapping it (if any), and the header it sits in
// ("" for free text).
type Token struct {
	Address     string
	DisplayName string
	Start       int
	End         int
	Header      string
}

// Region is a half-open byte range of the document in which addresses are
// recognized.
type Region struct {
	Start  int
	End    int
	Header string
}

// addressHeaders are the header names whose values carry addresses.
var addressHeaders = map[string]string{
	"to":       "To",
	"cc":       "Cc",
	"bcc":      "Bcc",
	"from":     "From",
	"reply-to": "Reply-To",
	"sender":   "Sender",
}

var (
	headerLine = regexp.MustCompile(`^([A-Za-z][A-Za-z-]*):`)

	// mailbox matches an optional display name followed by an address,
	// with or without angle brackets. The address requires a dotted
	// domain so bare local words are not picked up from prose.
	mailbox = regexp.MustCompile(
		`(?:(?P<name>"[^"\n]+"|[A-Za-z][A-Za-z .'-]*[A-Za-z.'])\s+)?<?\b` +
			`(?P<addr>[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,})\b>?`)

	nameIdx = mailbox.SubexpIndex("name")
	addrIdx = mailbox.SubexpIndex("addr")

	// wordChars are the characters that may appear in a partially typed
	// address, beyond letters and digits.
	wordChars = "._%+-@"
)

// Sniff classifies the document. A document is header-shaped when it
// opens with a block of header-looking lines that includes at least one
// recipient header. A note that merely starts with "Note:" stays free
// text.
func Sniff(text string) Shape {
	sawHeader := false
	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			break
		}
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			// Folded continuation of a previous header.
			if !sawHeader {
				break
			}
			continue
		}
		m := headerLine.FindStringSubmatch(line)
		if m == nil {
			if i == 0 {
				return ShapeFreeText
			}
			break
		}
		sawHeader = true
		if _, ok := addressHeaders[strings.ToLower(m[1])]; ok {
			return ShapeHeader
		}
	}
	return ShapeFreeText
}

// Regions returns the address-bearing byte ranges of the document in
// ascending order.
func Regions(text string) []Region {
	if Sniff(text) == ShapeFreeText {
		return []Region{{Start: 0, End: len(text)}}
	}

	var regions []Region
	offset := 0
	current := -1 // index into regions of the open header region
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimRight(line, "\n")
		switch {
		case strings.TrimSpace(trimmed) == "":
			// Blank line ends the header block.
			return regions
		case strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t"):
			// Folded continuation extends the open region; continuations
			// of non-recipient headers stay in the block but add nothing.
			if current >= 0 {
				regions[current].End = offset + len(trimmed)
			}
		default:
			current = -1
			m := headerLine.FindStringSubmatch(trimmed)
			if m == nil {
				// First body line ends the header block; anything
				// header-looking further down is prose.
				return regions
			}
			if name, ok := addressHeaders[strings.ToLower(m[1])]; ok {
				regions = append(regions, Region{
					Start:  offset + len(m[0]),
					End:    offset + len(trimmed),
					Header: name,
				})
				current = len(regions) - 1
			}
		}
		offset += len(line)
	}
	return regions
}

// Extract returns every address token in the document, ordered by start
// offset. Spans never overlap.
func Extract(text string) []Token {
	var tokens []Token
	for _, region := range Regions(text) {
		slice := text[region.Start:region.End]
		for _, m := range mailbox.FindAllStringSubmatchIndex(slice, -1) {
			tok := Token{
				Address: slice[m[2*addrIdx]:m[2*addrIdx+1]],
				Start:   region.Start + m[2*addrIdx],
				End:     region.Start + m[2*addrIdx+1],
				Header:  region.Header,
			}
			if m[2*nameIdx] >= 0 {
				tok.DisplayName = strings.Trim(slice[m[2*nameIdx]:m[2*nameIdx+1]], `"`)
			}
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// TokenAt returns the token whose span contains the byte offset. The span
// is half-open: an offset on the character just past an address (a comma,
// whitespace) yields no token.
func TokenAt(text string, offset int) (Token, bool) {
	tokens := Extract(text)
	i := sort.Search(len(tokens), func(i int) bool {
		return tokens[i].End > offset
	})
	if i < len(tokens) && tokens[i].Start <= offset {
		return tokens[i], true
	}
	return Token{}, false
}

// PartialAt returns the partially typed address-like word containing the
// byte offset, with its replacement span. It reports false when the
// offset is outside every address-bearing region or not on a word.
func PartialAt(text string, offset int) (word string, start, end int, ok bool) {
	var region Region
	found := false
	for _, r := range Regions(text) {
		if r.Start <= offset && offset <= r.End {
			region = r
			found = true
			break
		}
	}
	if !found {
		return "", 0, 0, false
	}

	isWord := func(b byte) bool {
		return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' ||
			b >= '0' && b <= '9' || strings.IndexByte(wordChars, b) >= 0
	}

	start, end = offset, offset
	for start > region.Start && isWord(text[start-1]) {
		start--
	}
	for end < region.End && isWord(text[end]) {
		end++
	}
	if start == end {
		return "", 0, 0, false
	}
	return text[start:end], start, end, true
}
