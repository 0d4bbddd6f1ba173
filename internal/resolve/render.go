package resolve

import (
	"fmt"
	"strings"

	"github.com/cardmail/cardmail/internal/contact"
	"github.com/cardmail/cardmail/internal/extract"
)

// RenderContact formats a contact as the markdown summary shown in hovers
// and completion documentation.
func RenderContact(c *contact.Contact) string {
	var b strings.Builder
	if c.Name != "" {
		fmt.Fprintf(&b, "# %s\n\n", c.Name)
	}
	if c.Nickname != "" {
		fmt.Fprintf(&b, "_%s_\n\n", c.Nickname)
	}

	b.WriteString("Email:\n")
	for _, e := range c.Emails {
		if e.Type != "" {
			fmt.Fprintf(&b, "- %s: %s\n", e.Type, e.Address)
		} else {
			fmt.Fprintf(&b, "- %s\n", e.Address)
		}
	}

	var lastLabel string
	for _, f := range c.Aux {
		if f.Label != lastLabel {
			fmt.Fprintf(&b, "\n%s:\n", f.Label)
			lastLabel = f.Label
		}
		fmt.Fprintf(&b, "- %s\n", f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderUnknown formats the minimal summary for an address with no
// matching contact.
func renderUnknown(tok extract.Token) string {
	var b strings.Builder
	if tok.DisplayName != "" {
		fmt.Fprintf(&b, "# %s\n\n", tok.DisplayName)
	}
	fmt.Fprintf(&b, "Email:\n- %s\n\n", tok.Address)
	b.WriteString("_Not in contacts._")
	return b.String()
}
