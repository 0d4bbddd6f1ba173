package resolve

import (
	"errors"
	"strings"
	"testing"

	"github.com/cardmail/cardmail/internal/contact"
	"github.com/cardmail/cardmail/internal/docstore"
)

func testEngine(t *testing.T, contacts ...*contact.Contact) (*Engine, *docstore.Store) {
	t.Helper()
	index := contact.NewIndex()
	if _, dups := index.Swap(contacts); len(dups) != 0 {
		t.Fatalf("fixture contacts collide: %+v", dups)
	}
	store := docstore.NewStore(docstore.EncodingUTF16)
	return NewEngine(index, store, 0), store
}

func jane() *contact.Contact {
	return &contact.Contact{
		Name:     "Jane Doe",
		Nickname: "jd",
		Emails: []contact.Email{
			{Address: "jane@example.com", Type: "work"},
		},
		Aux:    []contact.Field{{Label: "Telephone", Value: "+1 555 0100"}},
		Source: contact.Location{Path: "/book/jane.vcf", Line: 4},
	}
}

func TestHoverKnownContact(t *testing.T) {
	e, store := testEngine(t, jane())
	text := "To: jane@example.com\n\n"
	store.Open("file:///m", text, 1)

	h, err := e.Hover("file:///m", docstore.Position{Line: 0, Character: 6})
	if err != nil {
		t.Fatal(err)
	}
	if h == nil {
		t.Fatal("Hover returned nothing for a known address")
	}
	if text[h.Start:h.End] != "jane@example.com" {
		t.Errorf("hover span covers %q", text[h.Start:h.End])
	}
	for _, want := range []string{"# Jane Doe", "_jd_", "- work: jane@example.com", "Telephone:", "- +1 555 0100"} {
		if !strings.Contains(h.Contents, want) {
			t.Errorf("hover contents missing %q:\n%s", want, h.Contents)
		}
	}
}

func TestHoverUnknownAddress(t *testing.T) {
	e, store := testEngine(t, jane())
	store.Open("file:///m", "To: Stranger <nobody@example.com>\n\n", 1)

	h, err := e.Hover("file:///m", docstore.Position{Line: 0, Character: 20})
	if err != nil {
		t.Fatal(err)
	}
	if h == nil {
		t.Fatal("an unknown address still gets a minimal hover")
	}
	for _, want := range []string{"# Stranger", "- nobody@example.com", "_Not in contacts._"} {
		if !strings.Contains(h.Contents, want) {
			t.Errorf("hover contents missing %q:\n%s", want, h.Contents)
		}
	}
}

func TestHoverOffToken(t *testing.T) {
	e, store := testEngine(t, jane())
	store.Open("file:///m", "To: jane@example.com\n\n", 1)

	h, err := e.Hover("file:///m", docstore.Position{Line: 0, Character: 1})
	if err != nil {
		t.Fatal(err)
	}
	if h != nil {
		t.Errorf("Hover off an address returned %+v", h)
	}
}

func TestHoverUnknownDocument(t *testing.T) {
	e, _ := testEngine(t)
	if _, err := e.Hover("file:///nope", docstore.Position{}); !errors.Is(err, docstore.ErrUnknownDocument) {
		t.Errorf("got %v, want ErrUnknownDocument", err)
	}
}

func TestDefinition(t *testing.T) {
	e, store := testEngine(t, jane())
	store.Open("file:///m", "To: jane@example.com, nobody@example.com\n\n", 1)

	loc, err := e.Definition("file:///m", docstore.Position{Line: 0, Character: 6})
	if err != nil {
		t.Fatal(err)
	}
	if loc == nil || loc.Path != "/book/jane.vcf" || loc.Line != 4 {
		t.Errorf("definition = %+v, want /book/jane.vcf line 4", loc)
	}

	loc, err = e.Definition("file:///m", docstore.Position{Line: 0, Character: 25})
	if err != nil {
		t.Fatal(err)
	}
	if loc != nil {
		t.Errorf("definition for an unknown address = %+v, want nil", loc)
	}
}

func TestDiagnostics(t *testing.T) {
	e, store := testEngine(t, jane())
	text := "To: jane@example.com, nobody@example.com\n\n"
	store.Open("file:///m", text, 1)

	diags, err := e.Diagnostics("file:///m")
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1: %+v", len(diags), diags)
	}
	d := diags[0]
	if text[d.Start:d.End] != "nobody@example.com" {
		t.Errorf("diagnostic span covers %q", text[d.Start:d.End])
	}
	if d.Message != "Address is not in contacts" {
		t.Errorf("message = %q", d.Message)
	}

	// Running the same query again yields the same result.
	again, _ := e.Diagnostics("file:///m")
	if len(again) != 1 || again[0] != d {
		t.Errorf("diagnostics are not stable: %+v vs %+v", again, diags)
	}
}

func TestKnownAndSummary(t *testing.T) {
	e, _ := testEngine(t, jane())

	if !e.Known("JANE@EXAMPLE.COM") {
		t.Error("Known should compare case-insensitively")
	}
	if e.Known("nobody@example.com") {
		t.Error("Known reported an unindexed address")
	}

	summary, ok := e.Summary(`"Jane Doe" <jane@example.com>`)
	if !ok || !strings.Contains(summary, "# Jane Doe") {
		t.Errorf("Summary = %q, %v", summary, ok)
	}
	if _, ok := e.Summary("nobody@example.com"); ok {
		t.Error("Summary resolved an unindexed address")
	}
}
