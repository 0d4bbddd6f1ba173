package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/cardmail/cardmail/internal/config"
	"github.com/cardmail/cardmail/internal/contact"
	"github.com/cardmail/cardmail/internal/docstore"
	"github.com/cardmail/cardmail/internal/resolve"
	"github.com/cardmail/cardmail/internal/vdir"
)

// Workspace commands exposed through executeCommand.
const (
	CommandCreateContact  = "create_contact"
	CommandReloadContacts = "reload_contacts"
)

// Server drives one editor session over a connection. Lifecycle events
// are processed strictly in arrival order; the contact watcher is the
// only concurrent mutator and swaps the index atomically.
type Server struct {
	conn       *Conn
	logger     *slog.Logger
	version    string
	configFile string
	overrides  config.Settings

	settings config.Settings
	store    *docstore.Store
	index    *contact.Index
	loader   *vdir.Loader
	engine   *resolve.Engine

	initialized bool
	shutdown    bool
}

// NewServer returns an unstarted server. configFile may be empty to use
// the default location; overrides (from CLI flags) take precedence over
// every other settings layer.
func NewServer(conn *Conn, logger *slog.Logger, version, configFile string, overrides config.Settings) *Server {
	return &Server{
		conn:       conn,
		logger:     logger,
		version:    version,
		configFile: configFile,
		overrides:  overrides,
	}
}

// Run serves the connection until the client sends exit or the transport
// closes. It returns an error when the client skips the shutdown
// handshake.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		msg, err := s.conn.Read()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		switch {
		case msg.Method == "exit":
			if s.shutdown {
				return nil
			}
			return errors.New("received exit notification before shutdown request")
		case msg.IsNotification():
			s.handleNotification(ctx, msg)
		case msg.Method != "":
			s.handleRequest(msg)
		default:
			// Response to a server-initiated request; nothing pends on it.
			s.logger.Debug("discarding client response", "id", string(msg.ID))
		}
	}
}

func (s *Server) handleRequest(msg *Message) {
	if !s.initialized && msg.Method != "initialize" {
		s.replyError(msg.ID, CodeServerNotInitialized, "server not initialized")
		return
	}
	if s.shutdown {
		s.replyError(msg.ID, CodeInvalidRequest, "received request after shutdown")
		return
	}

	switch msg.Method {
	case "initialize":
		s.handleInitialize(msg)
	case "textDocument/hover":
		s.handleHover(msg)
	case "textDocument/definition":
		s.handleDefinition(msg)
	case "textDocument/completion":
		s.handleCompletion(msg)
	case "completionItem/resolve":
		s.handleCompletionResolve(msg)
	case "textDocument/codeAction":
		s.handleCodeAction(msg)
	case "workspace/executeCommand":
		s.handleExecuteCommand(msg)
	case "shutdown":
		s.shutdown = true
		s.reply(msg.ID, nil)
	default:
		s.replyError(msg.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

func (s *Server) handleNotification(ctx context.Context, msg *Message) {
	// Notifications cannot be answered with an error, so anything sent
	// before initialize is dropped.
	if !s.initialized {
		s.logger.Warn("dropping notification before initialize", "method", msg.Method)
		return
	}
	switch msg.Method {
	case "initialized":
		s.startWatcher(ctx)
	case "textDocument/didOpen":
		s.handleDidOpen(msg)
	case "textDocument/didChange":
		s.handleDidChange(msg)
	case "textDocument/didClose":
		s.handleDidClose(msg)
	default:
		s.logger.Debug("unmatched notification", "method", msg.Method)
	}
}

func (s *Server) handleInitialize(msg *Message) {
	if s.initialized {
		s.replyError(msg.ID, CodeInvalidRequest, "server already initialized")
		return
	}

	var params InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.replyError(msg.ID, CodeInvalidParams, err.Error())
		return
	}

	settings, err := config.Resolve(s.configFile, params.InitializationOptions)
	if err != nil {
		s.showMessage(MessageTypeError, fmt.Sprintf("Invalid configuration: %v", err))
		s.replyError(msg.ID, CodeInvalidParams, err.Error())
		return
	}
	s.settings = settings.Merge(s.overrides)
	if s.settings.VCardDir == "" && s.settings.ContactListFile == "" {
		s.showMessage(MessageTypeWarning,
			"No vcard_dir or contact_list_file configured; starting with an empty contact index")
	}

	encoding := docstore.EncodingUTF16
	encodingName := "utf-16"
	if params.Capabilities.General != nil {
		for _, pe := range params.Capabilities.General.PositionEncodings {
			if pe == "utf-8" {
				encoding = docstore.EncodingUTF8
				encodingName = "utf-8"
				break
			}
		}
	}

	s.store = docstore.NewStore(encoding)
	s.index = contact.NewIndex()
	s.loader = vdir.NewLoader(s.settings.VCardDir, s.settings.ContactListFile, s.index)
	s.engine = resolve.NewEngine(s.index, s.store, s.settings.CompletionLimit)

	caps := ServerCapabilities{
		PositionEncoding: encodingName,
		TextDocumentSync: &TextDocumentSyncOptions{OpenClose: true, Change: SyncIncremental},
	}
	if s.settings.HoverEnabled() {
		caps.HoverProvider = true
	}
	if s.settings.GotoDefinitionEnabled() {
		caps.DefinitionProvider = true
	}
	if s.settings.CompletionEnabled() {
		caps.CompletionProvider = &CompletionOptions{ResolveProvider: true}
	}
	commands := []string{CommandReloadContacts}
	if s.settings.CodeActionsEnabled() {
		caps.CodeActionProvider = true
		commands = append(commands, CommandCreateContact)
	}
	caps.ExecuteCommandProvider = &ExecuteCommandOptions{Commands: commands}

	s.initialized = true
	s.reply(msg.ID, InitializeResult{
		Capabilities: caps,
		ServerInfo:   &ServerInfo{Name: "cardmail", Version: s.version},
	})

	snap, warnings := s.loader.Load()
	s.logger.Info("contacts loaded",
		"contacts", snap.Len(), "generation", snap.Generation(), "warnings", len(warnings))
	s.reportWarnings(warnings)
}

func (s *Server) startWatcher(ctx context.Context) {
	if !s.settings.WatchEnabled() {
		return
	}
	if s.settings.VCardDir == "" && s.settings.ContactListFile == "" {
		return
	}
	go func() {
		err := s.loader.Watch(ctx, s.logger, func(warnings []vdir.Warning) {
			s.reportWarnings(warnings)
			s.publishAllDiagnostics()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("contact watcher stopped", "error", err)
		}
	}()
}

func (s *Server) reportWarnings(warnings []vdir.Warning) {
	for _, w := range warnings {
		s.logger.Warn("load warning", "path", w.Path, "message", w.Message)
		s.logMessage(MessageTypeWarning, w.String())
	}
}

func (s *Server) reply(id json.RawMessage, result any) {
	if err := s.conn.Reply(id, result); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) replyError(id json.RawMessage, code int, message string) {
	if err := s.conn.ReplyError(id, code, message); err != nil {
		s.logger.Error("write error response", "error", err)
	}
}

func (s *Server) notify(method string, params any) {
	if err := s.conn.Notify(method, params); err != nil {
		s.logger.Error("write notification", "method", method, "error", err)
	}
}

func (s *Server) logMessage(typ int, message string) {
	s.notify("window/logMessage", LogMessageParams{Type: typ, Message: message})
}

func (s *Server) showMessage(typ int, message string) {
	s.notify("window/showMessage", LogMessageParams{Type: typ, Message: message})
}

// fileURI renders an absolute path as a file:// URI.
func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: path}
	return u.String()
}

// rangeFor converts a byte span of the document into a protocol range.
func (s *Server) rangeFor(uri string, start, end int) (Range, error) {
	doc, err := s.store.Snapshot(uri)
	if err != nil {
		return Range{}, err
	}
	enc := s.store.Encoding()
	from := docstore.PositionForOffset(doc.Text, start, enc)
	to := docstore.PositionForOffset(doc.Text, end, enc)
	return Range{
		Start: Position{Line: from.Line, Character: from.Character},
		End:   Position{Line: to.Line, Character: to.Character},
	}, nil
}
