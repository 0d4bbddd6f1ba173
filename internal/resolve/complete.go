package resolve

import (
	"sort"
	"strings"

	"github.com/cardmail/cardmail/internal/contact"
	"github.com/cardmail/cardmail/internal/docstore"
	"github.com/cardmail/cardmail/internal/extract"
)

// CompletionItem is one suggested mailbox. InsertText replaces the byte
// span [Start, End) of the document.
type CompletionItem struct {
	Label      string
	InsertText string
	Detail     string
	Start      int
	End        int
}

// Rank returns the mailboxes of every contact matching the word, ordered
// for completion: contacts whose display name or address has the word as
// a prefix come before substring matches, ties break by address lexical
// order. The second result is true when the limit cut results off.
func Rank(snap *contact.Snapshot, word string, limit int) ([]contact.Mailbox, bool) {
	word = strings.ToLower(word)

	type candidate struct {
		mailbox contact.Mailbox
		prefix  bool
	}
	var cands []candidate
	seen := make(map[string]bool)
	for _, c := range snap.Contacts() {
		if !c.Matches(word) {
			continue
		}
		prefix := c.HasPrefix(word)
		for _, m := range c.Mailboxes() {
			key := strings.ToLower(m.String())
			if seen[key] {
				continue
			}
			seen[key] = true
			cands = append(cands, candidate{mailbox: m, prefix: prefix})
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].prefix != cands[j].prefix {
			return cands[i].prefix
		}
		ai := contact.Normalize(cands[i].mailbox.Address)
		aj := contact.Normalize(cands[j].mailbox.Address)
		if ai != aj {
			return ai < aj
		}
		return cands[i].mailbox.Name < cands[j].mailbox.Name
	})

	incomplete := false
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
		incomplete = true
	}

	mailboxes := make([]contact.Mailbox, len(cands))
	for i, cand := range cands {
		mailboxes[i] = cand.mailbox
	}
	return mailboxes, incomplete
}

// Complete suggests mailboxes for the partial word at the position.
// Outside an address-bearing region the result is empty.
func (e *Engine) Complete(uri string, pos docstore.Position) ([]CompletionItem, bool, error) {
	doc, err := e.store.Snapshot(uri)
	if err != nil {
		return nil, false, err
	}
	offset := docstore.OffsetForPosition(doc.Text, pos, e.store.Encoding())
	word, start, end, ok := extract.PartialAt(doc.Text, offset)
	if !ok {
		return nil, false, nil
	}

	mailboxes, incomplete := Rank(e.index.Snapshot(), word, e.limit)
	items := make([]CompletionItem, len(mailboxes))
	for i, m := range mailboxes {
		items[i] = CompletionItem{
			Label:      m.String(),
			InsertText: m.String(),
			Detail:     m.Address,
			Start:      start,
			End:        end,
		}
	}
	return items, incomplete, nil
}
