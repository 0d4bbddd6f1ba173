package contact

import "sync/atomic"

// Duplicate records an address that appeared in more than one source. The
// entry from the later-enumerated source is kept.
type Duplicate struct {
	Address   string
	Kept      Location
	Discarded Location
}

// Snapshot is one immutable generation of the contact index. Queries pin a
// snapshot once and compute entirely from it.
type Snapshot struct {
	generation uint64
	byAddress  map[string]*Contact
	contacts   []*Contact
}

// NewSnapshot builds a snapshot from contacts in enumeration order. When
// two contacts carry the same normalized address, the later one wins for
// that address and a Duplicate is recorded.
func NewSnapshot(generation uint64, contacts []*Contact) (*Snapshot, []Duplicate) {
	var dups []Duplicate
	byAddress := make(map[string]*Contact)
	for _, c := range contacts {
		for _, e := range c.Emails {
			norm := Normalize(e.Address)
			if prev, ok := byAddress[norm]; ok && prev != c {
				dups = append(dups, Duplicate{
					Address:   norm,
					Kept:      c.Source,
					Discarded: prev.Source,
				})
			}
			byAddress[norm] = c
		}
	}
	return &Snapshot{
		generation: generation,
		byAddress:  byAddress,
		contacts:   contacts,
	}, dups
}

// Generation returns the snapshot's generation counter.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Len returns the number of contacts in the snapshot.
func (s *Snapshot) Len() int { return len(s.contacts) }

// Lookup resolves an address (any case) to its contact.
func (s *Snapshot) Lookup(address string) (*Contact, bool) {
	c, ok := s.byAddress[Normalize(address)]
	return c, ok
}

// Contacts returns all contacts in enumeration order. Callers must not
// mutate the returned slice.
func (s *Snapshot) Contacts() []*Contact { return s.contacts }

// Index holds the current snapshot behind an atomic pointer. A rebuild
// prepares the next snapshot aside and swaps it in whole, so readers see
// either the old or the new index, never a mix.
type Index struct {
	snap atomic.Pointer[Snapshot]
	gen  atomic.Uint64
}

// NewIndex returns an index holding an empty generation-zero snapshot.
func NewIndex() *Index {
	ix := &Index{}
	empty, _ := NewSnapshot(0, nil)
	ix.snap.Store(empty)
	return ix
}

// Snapshot returns the current snapshot.
func (ix *Index) Snapshot() *Snapshot {
	return ix.snap.Load()
}

// Swap installs contacts as the next generation and returns the new
// snapshot along with any duplicate-address records.
func (ix *Index) Swap(contacts []*Contact) (*Snapshot, []Duplicate) {
	snap, dups := NewSnapshot(ix.gen.Add(1), contacts)
	ix.snap.Store(snap)
	return snap, dups
}
