// Package contact defines the contact data model and the in-memory index
// that maps email addresses to contacts.
package contact

import (
	"fmt"
	"strings"
)

// Normalize returns the form of an email address used for index lookups.
// Addresses compare case-insensitively but are stored case-preserved.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Mailbox is a display name paired with a single email address. The name is
// optional.
type Mailbox struct {
	Name    string
	Address string
}

// ParseMailbox parses a mailbox string of the form `"Name" <addr>`,
// `Name <addr>`, or a bare address.
func ParseMailbox(s string) Mailbox {
	s = strings.TrimSpace(s)
	if name, addr, ok := strings.Cut(s, " <"); ok && strings.HasSuffix(addr, ">") {
		name = strings.Trim(strings.TrimSpace(name), `"`)
		addr = strings.TrimSuffix(addr, ">")
		return Mailbox{Name: name, Address: strings.TrimSpace(addr)}
	}
	return Mailbox{Address: s}
}

// String formats the mailbox for insertion into a recipient header.
func (m Mailbox) String() string {
	if m.Name == "" {
		return m.Address
	}
	return fmt.Sprintf("%q <%s>", m.Name, m.Address)
}

// Location points at the place a contact is defined. Line is the 0-based
// line of the defining field within the file, or -1 when unknown.
type Location struct {
	Path string
	Line int
}

// Email is one address on a contact, with the optional TYPE parameter from
// the source card (e.g. "home", "work").
type Email struct {
	Address string
	Type    string
}

// Field is an auxiliary display field from the source card, such as a
// telephone number or organization.
type Field struct {
	Label string
	Value string
}

// Contact is one logical person or entity from the address book. Every
// stored Contact has at least one email address; cards without addresses
// are dropped by the loader.
type Contact struct {
	Name     string
	Nickname string
	Emails   []Email
	Aux      []Field
	Source   Location
}

// Addresses returns the contact's addresses in card order.
func (c *Contact) Addresses() []string {
	out := make([]string, len(c.Emails))
	for i, e := range c.Emails {
		out[i] = e.Address
	}
	return out
}

// HasAddress reports whether the contact carries the given address,
// compared case-insensitively.
func (c *Contact) HasAddress(address string) bool {
	norm := Normalize(address)
	for _, e := range c.Emails {
		if Normalize(e.Address) == norm {
			return true
		}
	}
	return false
}

// Mailboxes returns one mailbox per address, each carrying the contact's
// display name.
func (c *Contact) Mailboxes() []Mailbox {
	out := make([]Mailbox, len(c.Emails))
	for i, e := range c.Emails {
		out[i] = Mailbox{Name: c.Name, Address: e.Address}
	}
	return out
}

// Matches reports whether the lowercased word occurs in the contact's
// name, nickname, or any address.
func (c *Contact) Matches(word string) bool {
	if word == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), word) {
		return true
	}
	if strings.Contains(strings.ToLower(c.Nickname), word) {
		return true
	}
	for _, e := range c.Emails {
		if strings.Contains(strings.ToLower(e.Address), word) {
			return true
		}
	}
	return false
}

// HasPrefix reports whether the contact's name or any address starts with
// the lowercased word.
func (c *Contact) HasPrefix(word string) bool {
	if word == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(c.Name), word) {
		return true
	}
	for _, e := range c.Emails {
		if strings.HasPrefix(strings.ToLower(e.Address), word) {
			return true
		}
	}
	return false
}
