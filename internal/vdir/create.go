package vdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"

	"github.com/cardmail/cardmail/internal/contact"
)

// CreateContact writes a minimal card for the mailbox into the vCard
// directory and returns the new file's path. The caller is expected to
// trigger a reload afterwards.
func (l *Loader) CreateContact(m contact.Mailbox) (string, error) {
	if l.dir == "" {
		return "", fmt.Errorf("no contact directory configured")
	}
	if m.Address == "" {
		return "", fmt.Errorf("mailbox has no address")
	}

	id := uuid.NewString()
	path := filepath.Join(l.dir, id+".vcf")

	card := make(vcard.Card)
	card.SetValue(vcard.FieldFormattedName, m.Name)
	card.SetValue(vcard.FieldUID, "urn:uuid:"+id)
	card.SetValue(vcard.FieldEmail, m.Address)
	vcard.ToV4(card)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create contact file: %w", err)
	}
	defer f.Close()

	if err := vcard.NewEncoder(f).Encode(card); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write contact file: %w", err)
	}
	return path, nil
}
