// Package docstore holds the live text and version of every open document
// and converts between the client's line/character positions and byte
// offsets.
package docstore

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"
)

var (
	// ErrUnknownDocument is returned when no document is open for a URI.
	ErrUnknownDocument = errors.New("unknown document")

	// ErrStaleVersion is returned when a change does not carry a version
	// strictly greater than the stored one.
	ErrStaleVersion = errors.New("stale document version")

	// ErrInvalidEdit is returned when an edit cannot be applied; the whole
	// change is rejected and the stored text is left untouched.
	ErrInvalidEdit = errors.New("invalid edit")
)

// Encoding selects how the Character component of positions is counted.
type Encoding int

const (
	// EncodingUTF16 counts characters in UTF-16 code units, the LSP
	// default.
	EncodingUTF16 Encoding = iota

	// EncodingUTF8 counts characters in bytes, used when the client
	// negotiates utf-8 position encoding.
	EncodingUTF8
)

// Position is a line/character pair in the negotiated encoding. Both are
// 0-based.
type Position struct {
	Line      int
	Character int
}

// Edit is one content change. When Whole is set the entire text is
// replaced; otherwise the range [Start, End) is replaced with Text.
type Edit struct {
	Whole bool
	Start Position
	End   Position
	Text  string
}

// Document is an immutable snapshot of one open buffer.
type Document struct {
	URI     string
	Version int32
	Text    string
}

// Store owns every open document. Mutations are serialized; reads return
// value snapshots so queries never observe a torn document.
type Store struct {
	mu       sync.RWMutex
	encoding Encoding
	docs     map[string]Document
}

// NewStore returns an empty store using the given position encoding.
func NewStore(encoding Encoding) *Store {
	return &Store{
		encoding: encoding,
		docs:     make(map[string]Document),
	}
}

// Encoding returns the negotiated position encoding.
func (s *Store) Encoding() Encoding { return s.encoding }

// Open inserts a document. An already-open URI is replaced, treated as
// close-then-open.
func (s *Store) Open(uri, text string, version int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[uri] = Document{URI: uri, Version: version, Text: text}
}

// Close removes a document.
func (s *Store) Close(uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[uri]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
	}
	delete(s.docs, uri)
	return nil
}

// Change applies an ordered sequence of edits. The edits run against a
// scratch copy and commit only if every one of them applies, so a failed
// change leaves the document unchanged. The version must be strictly
// greater than the stored one.
func (s *Store) Change(uri string, version int32, edits []Edit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
	}
	if version <= doc.Version {
		return fmt.Errorf("%w: %s has version %d, got %d", ErrStaleVersion, uri, doc.Version, version)
	}

	text := doc.Text
	for _, e := range edits {
		next, err := apply(text, e, s.encoding)
		if err != nil {
			return err
		}
		text = next
	}

	doc.Text = text
	doc.Version = version
	s.docs[uri] = doc
	return nil
}

func apply(text string, e Edit, enc Encoding) (string, error) {
	if !utf8.ValidString(e.Text) {
		return "", fmt.Errorf("%w: replacement text is not valid UTF-8", ErrInvalidEdit)
	}
	if e.Whole {
		return e.Text, nil
	}
	start := OffsetForPosition(text, e.Start, enc)
	end := OffsetForPosition(text, e.End, enc)
	if start > end {
		return "", fmt.Errorf("%w: range start %d after end %d", ErrInvalidEdit, start, end)
	}
	return text[:start] + e.Text + text[end:], nil
}

// Snapshot returns a value copy of the document for the URI.
func (s *Store) Snapshot(uri string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
	}
	return doc, nil
}

// URIs returns the URIs of all open documents.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	return uris
}

// OffsetFor converts a position in the given document to a byte offset.
func (s *Store) OffsetFor(uri string, p Position) (int, error) {
	doc, err := s.Snapshot(uri)
	if err != nil {
		return 0, err
	}
	return OffsetForPosition(doc.Text, p, s.encoding), nil
}

// PositionFor converts a byte offset in the given document to a position.
func (s *Store) PositionFor(uri string, offset int) (Position, error) {
	doc, err := s.Snapshot(uri)
	if err != nil {
		return Position{}, err
	}
	return PositionForOffset(doc.Text, offset, s.encoding), nil
}
