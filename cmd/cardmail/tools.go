package main

import "github.com/modelcontextprotocol/go-sdk/mcp"

type (
	// LookupInput contains parameters for looking up a contact by address.
	LookupInput struct {
		Email string `json:"email" jsonschema:"Email address to look up (case-insensitive)"`
	}

	// LookupOutput contains the matched contact, if any.
	LookupOutput struct {
		Found   bool     `json:"found"`
		Name    string   `json:"name,omitempty"`
		Emails  []string `json:"emails,omitempty"`
		Summary string   `json:"summary,omitempty"`
		Path    string   `json:"path,omitempty"`
	}

	// CompleteInput contains parameters for contact completion.
	CompleteInput struct {
		Query string `json:"query" jsonschema:"Partial name or address to complete"`
		Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default: 100)"`
	}

	// CompleteItem is one suggested mailbox.
	CompleteItem struct {
		Mailbox string `json:"mailbox"`
		Address string `json:"address"`
	}

	// CompleteOutput contains completion suggestions.
	CompleteOutput struct {
		Items      []CompleteItem `json:"items"`
		Incomplete bool           `json:"incomplete,omitempty"`
	}

	// ReloadInput contains parameters for reloading the contact index.
	ReloadInput struct{}

	// ReloadOutput contains the reload result.
	ReloadOutput struct {
		Contacts int      `json:"contacts"`
		Warnings []string `json:"warnings,omitempty"`
	}
)

func registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "contact_lookup",
		Description: "Look up a contact by email address. Returns the contact's name, all known addresses, a markdown summary, and the defining card file.",
	}, handleLookup)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "contact_complete",
		Description: "Suggest contacts whose name or address matches a partial query. Prefix matches rank before substring matches.",
	}, handleComplete)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "contacts_reload",
		Description: "Rebuild the contact index from the configured vCard directory and contact list file. Returns the contact count and any load warnings.",
	}, handleReload)
}
