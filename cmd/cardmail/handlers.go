package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/cardmail/cardmail/internal/config"
	"github.com/cardmail/cardmail/internal/contact"
	"github.com/cardmail/cardmail/internal/resolve"
	"github.com/cardmail/cardmail/internal/vdir"
)

var (
	contactIndex  *contact.Index
	contactLoader *vdir.Loader
)

func runMCP(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	settings, err := config.Resolve(flagConfig, nil)
	if err != nil {
		return err
	}
	settings = settings.Merge(flagOverrides())
	if settings.VCardDir == "" && settings.ContactListFile == "" {
		return fmt.Errorf("no contact source configured; pass --vcard-dir or --contact-list")
	}

	contactIndex = contact.NewIndex()
	contactLoader = vdir.NewLoader(settings.VCardDir, settings.ContactListFile, contactIndex)
	snap, warnings := contactLoader.Load()
	logger.Info("contacts loaded", "contacts", snap.Len(), "warnings", len(warnings))
	for _, w := range warnings {
		logger.Warn("load warning", "path", w.Path, "message", w.Message)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "cardmail",
		Version: version,
	}, nil)

	registerTools(server)

	if settings.WatchEnabled() {
		go func() {
			if err := contactLoader.Watch(cmd.Context(), logger, nil); err != nil {
				logger.Debug("contact watcher stopped", "error", err)
			}
		}()
	}

	if err := server.Run(cmd.Context(), &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("error running server: %w", err)
	}

	return nil
}

func handleLookup(ctx context.Context, req *mcp.CallToolRequest, input LookupInput) (*mcp.CallToolResult, LookupOutput, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return &mcp.CallToolResult{IsError: true}, LookupOutput{}, fmt.Errorf("email must not be empty")
	}

	c, found := contactIndex.Snapshot().Lookup(email)
	if !found {
		return nil, LookupOutput{Found: false}, nil
	}
	return nil, LookupOutput{
		Found:   true,
		Name:    c.Name,
		Emails:  c.Addresses(),
		Summary: resolve.RenderContact(c),
		Path:    c.Source.Path,
	}, nil
}

func handleComplete(ctx context.Context, req *mcp.CallToolRequest, input CompleteInput) (*mcp.CallToolResult, CompleteOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return &mcp.CallToolResult{IsError: true}, CompleteOutput{}, fmt.Errorf("query must not be empty")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = resolve.DefaultCompletionLimit
	}

	mailboxes, incomplete := resolve.Rank(contactIndex.Snapshot(), query, limit)
	items := make([]CompleteItem, len(mailboxes))
	for i, m := range mailboxes {
		items[i] = CompleteItem{Mailbox: m.String(), Address: m.Address}
	}
	return nil, CompleteOutput{Items: items, Incomplete: incomplete}, nil
}

func handleReload(ctx context.Context, req *mcp.CallToolRequest, input ReloadInput) (*mcp.CallToolResult, ReloadOutput, error) {
	snap, warnings := contactLoader.Load()
	out := ReloadOutput{Contacts: snap.Len()}
	for _, w := range warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	return nil, out, nil
}
