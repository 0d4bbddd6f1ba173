// Package main implements the cardmail contact resolution server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/cardmail/cardmail/internal/config"
	"github.com/cardmail/cardmail/internal/lsp"
)

var (
	flagConfig      string
	flagVCardDir    string
	flagContactList string
	flagLogLevel    string
)

func main() {
	root := &cobra.Command{
		Use:   "cardmail",
		Short: "Email address resolution for your editor",
		Long: `cardmail connects email addresses in the buffer you are composing to a
local address book of vCard contact files. It recognizes addresses in
recipient headers and free text and answers hover, go-to-definition,
and completion queries about them.`,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ~/.config/cardmail/config.yaml)")
	root.PersistentFlags().StringVar(&flagVCardDir, "vcard-dir", "", "directory of .vcf contact cards")
	root.PersistentFlags().StringVar(&flagContactList, "contact-list", "", "flat contact list file, one 'name address' per line")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")

	lspCmd := &cobra.Command{
		Use:     "lsp",
		Short:   "Run the language server on stdio",
		Example: `cardmail lsp --vcard-dir ~/.contacts`,
		Args:    cobra.NoArgs,
		RunE:    runLSP,
	}
	// Editors conventionally pass --stdio to language servers; stdio is
	// the only transport, so accept and ignore it.
	lspCmd.Flags().Bool("stdio", true, "serve over stdio")

	mcpCmd := &cobra.Command{
		Use:     "mcp",
		Short:   "Run the MCP server on stdio",
		Example: `cardmail mcp --vcard-dir ~/.contacts`,
		Args:    cobra.NoArgs,
		RunE:    runMCP,
	}

	root.AddCommand(lspCmd, mcpCmd)

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithoutCompletions(),
		fang.WithoutManpage(),
	); err != nil {
		os.Exit(1)
	}
}

// newLogger logs to stderr; stdout carries the protocol.
func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(flagLogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func flagOverrides() config.Settings {
	return config.Settings{
		VCardDir:        config.ExpandHome(flagVCardDir),
		ContactListFile: config.ExpandHome(flagContactList),
	}
}

func runLSP(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	conn := lsp.NewConn(os.Stdin, os.Stdout)
	server := lsp.NewServer(conn, logger, version, flagConfig, flagOverrides())
	if err := server.Run(cmd.Context()); err != nil {
		return fmt.Errorf("error running server: %w", err)
	}
	return nil
}
