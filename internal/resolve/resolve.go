// Package resolve answers hover, definition, completion, and diagnostic
// queries against the contact index and open documents.
package resolve

import (
	"github.com/cardmail/cardmail/internal/contact"
	"github.com/cardmail/cardmail/internal/docstore"
	"github.com/cardmail/cardmail/internal/extract"
)

// DefaultCompletionLimit caps completion responses when no limit is
// configured.
const DefaultCompletionLimit = 100

// Engine is the query surface. Each query pins one index snapshot and one
// document snapshot up front and computes entirely from those, so a
// concurrent reload or edit cannot produce a torn result.
type Engine struct {
	index *contact.Index
	store *docstore.Store
	limit int
}

// NewEngine returns an engine over the index and document store. limit
// caps completion results; zero means DefaultCompletionLimit.
func NewEngine(index *contact.Index, store *docstore.Store, limit int) *Engine {
	if limit <= 0 {
		limit = DefaultCompletionLimit
	}
	return &Engine{index: index, store: store, limit: limit}
}

// Hover is a formatted contact summary plus the exact byte span hovered.
type Hover struct {
	Contents string
	Start    int
	End      int
}

// Hover resolves the address token at the position. It returns nil when
// the position is not on an address; an address with no matching contact
// yields a minimal summary with just the address.
func (e *Engine) Hover(uri string, pos docstore.Position) (*Hover, error) {
	doc, err := e.store.Snapshot(uri)
	if err != nil {
		return nil, err
	}
	offset := docstore.OffsetForPosition(doc.Text, pos, e.store.Encoding())
	tok, ok := extract.TokenAt(doc.Text, offset)
	if !ok {
		return nil, nil
	}

	snap := e.index.Snapshot()
	var contents string
	if c, found := snap.Lookup(tok.Address); found {
		contents = RenderContact(c)
	} else {
		contents = renderUnknown(tok)
	}
	return &Hover{Contents: contents, Start: tok.Start, End: tok.End}, nil
}

// Definition resolves the address token at the position to the location
// of its defining contact card. It returns nil both when no token is
// present and when the token matches no contact.
func (e *Engine) Definition(uri string, pos docstore.Position) (*contact.Location, error) {
	doc, err := e.store.Snapshot(uri)
	if err != nil {
		return nil, err
	}
	offset := docstore.OffsetForPosition(doc.Text, pos, e.store.Encoding())
	tok, ok := extract.TokenAt(doc.Text, offset)
	if !ok {
		return nil, nil
	}
	c, found := e.index.Snapshot().Lookup(tok.Address)
	if !found {
		return nil, nil
	}
	loc := c.Source
	return &loc, nil
}

// Diagnostic flags an extracted address with no matching contact.
type Diagnostic struct {
	Start   int
	End     int
	Message string
}

// Diagnostics reports every address token in the document whose address
// is not in the index.
func (e *Engine) Diagnostics(uri string) ([]Diagnostic, error) {
	doc, err := e.store.Snapshot(uri)
	if err != nil {
		return nil, err
	}
	snap := e.index.Snapshot()
	var diags []Diagnostic
	for _, tok := range extract.Extract(doc.Text) {
		if _, found := snap.Lookup(tok.Address); !found {
			diags = append(diags, Diagnostic{
				Start:   tok.Start,
				End:     tok.End,
				Message: "Address is not in contacts",
			})
		}
	}
	return diags, nil
}

// TokenAt exposes the token under a position, for code actions.
func (e *Engine) TokenAt(uri string, pos docstore.Position) (extract.Token, bool, error) {
	doc, err := e.store.Snapshot(uri)
	if err != nil {
		return extract.Token{}, false, err
	}
	offset := docstore.OffsetForPosition(doc.Text, pos, e.store.Encoding())
	tok, ok := extract.TokenAt(doc.Text, offset)
	return tok, ok, nil
}

// Known reports whether the address resolves to a contact.
func (e *Engine) Known(address string) bool {
	_, found := e.index.Snapshot().Lookup(address)
	return found
}

// Summary renders the contact summary for a mailbox label previously
// handed out by completion, for completionItem/resolve.
func (e *Engine) Summary(label string) (string, bool) {
	m := contact.ParseMailbox(label)
	c, found := e.index.Snapshot().Lookup(m.Address)
	if !found {
		return "", false
	}
	return RenderContact(c), true
}
