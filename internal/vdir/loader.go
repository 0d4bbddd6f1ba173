// Package vdir loads contact cards from a directory of vCard files and an
// optional flat contact-list file, producing contact index snapshots.
package vdir

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/cardmail/cardmail/internal/contact"
)

// Warning is a recoverable per-file problem collected during a load. A
// warning never aborts the index build.
type Warning struct {
	Path    string
	Message string
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}

// Loader reads contact sources and rebuilds the index wholesale. Contact
// directories are small, so a full rebuild is cheaper than incremental
// card diffing.
type Loader struct {
	dir      string
	listFile string
	index    *contact.Index
}

// NewLoader returns a loader over the given vCard directory and optional
// contact-list file. Either may be empty.
func NewLoader(dir, listFile string, index *contact.Index) *Loader {
	return &Loader{dir: dir, listFile: listFile, index: index}
}

// Dir returns the vCard directory path.
func (l *Loader) Dir() string { return l.dir }

// Load rebuilds the index from scratch and atomically swaps it in.
// Enumeration order is sorted file path within the directory, then the
// contact-list file, so duplicate resolution is reproducible: the
// later-enumerated source wins.
func (l *Loader) Load() (*contact.Snapshot, []Warning) {
	var (
		contacts []*contact.Contact
		warnings []Warning
	)

	if l.dir != "" {
		cs, ws := l.loadDir()
		contacts = append(contacts, cs...)
		warnings = append(warnings, ws...)
	}
	if l.listFile != "" {
		cs, ws := loadListFile(l.listFile)
		contacts = append(contacts, cs...)
		warnings = append(warnings, ws...)
	}

	snap, dups := l.index.Swap(contacts)
	for _, d := range dups {
		warnings = append(warnings, Warning{
			Path: d.Discarded.Path,
			Message: fmt.Sprintf("duplicate address %s discarded in favor of %s",
				d.Address, d.Kept.Path),
		})
	}
	return snap, warnings
}

func (l *Loader) loadDir() ([]*contact.Contact, []Warning) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, []Warning{{Path: l.dir, Message: "contact directory does not exist"}}
		}
		return nil, []Warning{{Path: l.dir, Message: err.Error()}}
	}

	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ".vcf") {
			paths = append(paths, filepath.Join(l.dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	var contacts []*contact.Contact
	var warnings []Warning
	for _, path := range paths {
		cs, err := loadCardFile(path)
		if err != nil {
			warnings = append(warnings, Warning{Path: path, Message: err.Error()})
			continue
		}
		contacts = append(contacts, cs...)
	}
	return contacts, warnings
}

// loadCardFile parses one vCard file, which may contain several cards.
// Cards without any email address are dropped.
func loadCardFile(path string) ([]*contact.Contact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var contacts []*contact.Contact
	dec := vcard.NewDecoder(strings.NewReader(string(raw)))
	for {
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse vcard: %w", err)
		}
		c := contactFromCard(card, path, string(raw))
		if c != nil {
			contacts = append(contacts, c)
		}
	}
	return contacts, nil
}

// auxFields are the card properties surfaced as auxiliary display fields,
// in render order.
var auxFields = []struct {
	prop  string
	label string
}{
	{vcard.FieldTelephone, "Telephone"},
	{vcard.FieldOrganization, "Organization"},
	{vcard.FieldTitle, "Title"},
	{vcard.FieldURL, "URL"},
	{vcard.FieldNote, "Note"},
}

func contactFromCard(card vcard.Card, path, raw string) *contact.Contact {
	emailFields := card[vcard.FieldEmail]
	if len(emailFields) == 0 {
		return nil
	}

	c := &contact.Contact{
		Name:     card.PreferredValue(vcard.FieldFormattedName),
		Nickname: card.PreferredValue(vcard.FieldNickname),
		Source:   contact.Location{Path: path, Line: -1},
	}
	for _, f := range emailFields {
		addr := strings.TrimSpace(f.Value)
		if addr == "" {
			continue
		}
		var typ string
		if f.Params != nil {
			typ = f.Params.Get(vcard.ParamType)
		}
		c.Emails = append(c.Emails, contact.Email{Address: addr, Type: typ})
	}
	if len(c.Emails) == 0 {
		return nil
	}
	c.Source.Line = fieldLine(raw, c.Emails[0].Address)

	for _, aux := range auxFields {
		for _, f := range card[aux.prop] {
			if v := strings.TrimSpace(f.Value); v != "" {
				c.Aux = append(c.Aux, contact.Field{Label: aux.label, Value: v})
			}
		}
	}
	return c
}

// fieldLine finds the 0-based line of the first occurrence of the address
// in the raw card text, for jump-to-field definitions. Returns -1 when the
// address is not found verbatim (e.g. folded lines).
func fieldLine(raw, address string) int {
	lower := strings.ToLower(address)
	for i, line := range strings.Split(raw, "\n") {
		if strings.Contains(strings.ToLower(line), lower) {
			return i
		}
	}
	return -1
}

// loadListFile reads a flat contact list: one contact per line, formatted
// as an optional display name followed by the address.
func loadListFile(path string) ([]*contact.Contact, []Warning) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, []Warning{{Path: path, Message: "contact list file does not exist"}}
		}
		return nil, []Warning{{Path: path, Message: err.Error()}}
	}

	var contacts []*contact.Contact
	for i, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		address := parts[len(parts)-1]
		name := strings.Join(parts[:len(parts)-1], " ")
		contacts = append(contacts, &contact.Contact{
			Name:   name,
			Emails: []contact.Email{{Address: address}},
			Source: contact.Location{Path: path, Line: i},
		})
	}
	return contacts, nil
}
