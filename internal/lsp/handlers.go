package lsp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cardmail/cardmail/internal/contact"
	"github.com/cardmail/cardmail/internal/docstore"
)

func (s *Server) positionParams(msg *Message) (uri string, pos docstore.Position, ok bool) {
	var params TextDocumentPositionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.replyError(msg.ID, CodeInvalidParams, err.Error())
		return "", docstore.Position{}, false
	}
	return params.TextDocument.URI, docstore.Position{
		Line:      params.Position.Line,
		Character: params.Position.Character,
	}, true
}

// replyQueryError maps engine errors onto JSON-RPC failures. An unknown
// document is the caller's protocol error, everything else is internal.
func (s *Server) replyQueryError(id json.RawMessage, err error) {
	if errors.Is(err, docstore.ErrUnknownDocument) {
		s.replyError(id, CodeInvalidParams, err.Error())
		return
	}
	s.replyError(id, CodeInternalError, err.Error())
}

func (s *Server) handleHover(msg *Message) {
	if !s.settings.HoverEnabled() {
		s.replyError(msg.ID, CodeMethodNotFound, "hover capability not supported")
		return
	}
	uri, pos, ok := s.positionParams(msg)
	if !ok {
		return
	}
	hov, err := s.engine.Hover(uri, pos)
	if err != nil {
		s.replyQueryError(msg.ID, err)
		return
	}
	if hov == nil {
		s.reply(msg.ID, nil)
		return
	}
	r, err := s.rangeFor(uri, hov.Start, hov.End)
	if err != nil {
		s.replyQueryError(msg.ID, err)
		return
	}
	s.reply(msg.ID, Hover{
		Contents: MarkupContent{Kind: MarkupKindMarkdown, Value: hov.Contents},
		Range:    &r,
	})
}

func (s *Server) handleDefinition(msg *Message) {
	if !s.settings.GotoDefinitionEnabled() {
		s.replyError(msg.ID, CodeMethodNotFound, "goto definition capability not supported")
		return
	}
	uri, pos, ok := s.positionParams(msg)
	if !ok {
		return
	}
	loc, err := s.engine.Definition(uri, pos)
	if err != nil {
		s.replyQueryError(msg.ID, err)
		return
	}
	if loc == nil {
		s.reply(msg.ID, nil)
		return
	}
	var r Range
	if loc.Line >= 0 {
		r = Range{
			Start: Position{Line: loc.Line},
			End:   Position{Line: loc.Line},
		}
	}
	s.reply(msg.ID, Location{URI: fileURI(loc.Path), Range: r})
}

func (s *Server) handleCompletion(msg *Message) {
	if !s.settings.CompletionEnabled() {
		s.replyError(msg.ID, CodeMethodNotFound, "completion capability not supported")
		return
	}
	uri, pos, ok := s.positionParams(msg)
	if !ok {
		return
	}
	items, incomplete, err := s.engine.Complete(uri, pos)
	if err != nil {
		s.replyQueryError(msg.ID, err)
		return
	}
	list := CompletionList{IsIncomplete: incomplete, Items: make([]CompletionItem, 0, len(items))}
	for _, item := range items {
		ci := CompletionItem{
			Label:  item.Label,
			Kind:   CompletionItemKindText,
			Detail: item.Detail,
		}
		if r, err := s.rangeFor(uri, item.Start, item.End); err == nil {
			ci.TextEdit = &TextEdit{Range: r, NewText: item.InsertText}
		}
		list.Items = append(list.Items, ci)
	}
	s.reply(msg.ID, list)
}

func (s *Server) handleCompletionResolve(msg *Message) {
	if !s.settings.CompletionEnabled() {
		s.replyError(msg.ID, CodeMethodNotFound, "completion capability not supported")
		return
	}
	var item CompletionItem
	if err := json.Unmarshal(msg.Params, &item); err != nil {
		s.replyError(msg.ID, CodeInvalidParams, err.Error())
		return
	}
	if doc, ok := s.engine.Summary(item.Label); ok {
		item.Documentation = &MarkupContent{Kind: MarkupKindMarkdown, Value: doc}
	}
	s.reply(msg.ID, item)
}

// createContactArgs is the argument payload of the create_contact
// command.
type createContactArgs struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (s *Server) handleCodeAction(msg *Message) {
	if !s.settings.CodeActionsEnabled() {
		s.replyError(msg.ID, CodeMethodNotFound, "code action capability not supported")
		return
	}
	var params CodeActionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.replyError(msg.ID, CodeInvalidParams, err.Error())
		return
	}

	pos := docstore.Position{Line: params.Range.Start.Line, Character: params.Range.Start.Character}
	tok, ok, err := s.engine.TokenAt(params.TextDocument.URI, pos)
	if err != nil {
		s.replyQueryError(msg.ID, err)
		return
	}
	if !ok || s.engine.Known(tok.Address) {
		s.reply(msg.ID, []CodeAction{})
		return
	}

	args, err := json.Marshal(createContactArgs{Email: tok.Address, Name: tok.DisplayName})
	if err != nil {
		s.replyError(msg.ID, CodeInternalError, err.Error())
		return
	}
	s.reply(msg.ID, []CodeAction{{
		Title:       "Add to contacts",
		Kind:        CodeActionKindQuickFix,
		Diagnostics: params.Context.Diagnostics,
		Command: &Command{
			Title:     "Add to contacts",
			Command:   CommandCreateContact,
			Arguments: []json.RawMessage{args},
		},
	}})
}

func (s *Server) handleExecuteCommand(msg *Message) {
	var params ExecuteCommandParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.replyError(msg.ID, CodeInvalidParams, err.Error())
		return
	}

	switch params.Command {
	case CommandCreateContact:
		if !s.settings.CodeActionsEnabled() {
			s.replyError(msg.ID, CodeMethodNotFound, "code action capability not supported")
			return
		}
		s.executeCreateContact(msg, params)
	case CommandReloadContacts:
		snap, warnings := s.loader.Load()
		s.logger.Info("contacts reloaded",
			"contacts", snap.Len(), "generation", snap.Generation(), "warnings", len(warnings))
		s.reportWarnings(warnings)
		s.publishAllDiagnostics()
		messages := make([]string, len(warnings))
		for i, w := range warnings {
			messages[i] = w.String()
		}
		s.reply(msg.ID, messages)
	default:
		s.replyError(msg.ID, CodeInvalidRequest, fmt.Sprintf("unknown command: %s", params.Command))
	}
}

func (s *Server) executeCreateContact(msg *Message, params ExecuteCommandParams) {
	if len(params.Arguments) == 0 {
		s.replyError(msg.ID, CodeInvalidParams, "create_contact requires arguments")
		return
	}
	var args createContactArgs
	if err := json.Unmarshal(params.Arguments[0], &args); err != nil {
		s.replyError(msg.ID, CodeInvalidParams, "invalid arguments")
		return
	}
	path, err := s.loader.CreateContact(contact.Mailbox{Name: args.Name, Address: args.Email})
	if err != nil {
		s.replyError(msg.ID, CodeInternalError, err.Error())
		return
	}
	s.logger.Info("contact created", "path", path, "address", args.Email)

	_, warnings := s.loader.Load()
	s.reportWarnings(warnings)
	s.publishAllDiagnostics()

	if err := s.conn.Request("window/showDocument", ShowDocumentParams{URI: fileURI(path)}); err != nil {
		s.logger.Error("showDocument request", "error", err)
	}
	s.reply(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *Message) {
	var params DidOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logger.Warn("malformed didOpen", "error", err)
		return
	}
	doc := params.TextDocument
	s.store.Open(doc.URI, doc.Text, doc.Version)
	s.publishDiagnostics(doc.URI)
}

func (s *Server) handleDidChange(msg *Message) {
	var params DidChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logger.Warn("malformed didChange", "error", err)
		return
	}

	edits := make([]docstore.Edit, len(params.ContentChanges))
	for i, change := range params.ContentChanges {
		if change.Range == nil {
			edits[i] = docstore.Edit{Whole: true, Text: change.Text}
			continue
		}
		edits[i] = docstore.Edit{
			Start: docstore.Position{Line: change.Range.Start.Line, Character: change.Range.Start.Character},
			End:   docstore.Position{Line: change.Range.End.Line, Character: change.Range.End.Character},
			Text:  change.Text,
		}
	}

	uri := params.TextDocument.URI
	if err := s.store.Change(uri, params.TextDocument.Version, edits); err != nil {
		s.logger.Warn("change rejected", "uri", uri, "error", err)
		s.logMessage(MessageTypeWarning, fmt.Sprintf("change rejected: %v", err))
		return
	}
	s.publishDiagnostics(uri)
}

func (s *Server) handleDidClose(msg *Message) {
	var params DidCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logger.Warn("malformed didClose", "error", err)
		return
	}
	uri := params.TextDocument.URI
	if err := s.store.Close(uri); err != nil {
		s.logger.Warn("close rejected", "uri", uri, "error", err)
		return
	}
	// Clear any published diagnostics for the closed document.
	s.notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []Diagnostic{},
	})
}

// publishDiagnostics recomputes and pushes unknown-address hints for one
// document.
func (s *Server) publishDiagnostics(uri string) {
	doc, err := s.store.Snapshot(uri)
	if err != nil {
		return
	}
	found, err := s.engine.Diagnostics(uri)
	if err != nil {
		s.logger.Warn("diagnostics", "uri", uri, "error", err)
		return
	}
	diags := make([]Diagnostic, 0, len(found))
	for _, d := range found {
		r, err := s.rangeFor(uri, d.Start, d.End)
		if err != nil {
			continue
		}
		diags = append(diags, Diagnostic{
			Range:    r,
			Severity: DiagnosticSeverityHint,
			Message:  d.Message,
		})
	}
	version := doc.Version
	s.notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         uri,
		Version:     &version,
		Diagnostics: diags,
	})
}

func (s *Server) publishAllDiagnostics() {
	for _, uri := range s.store.URIs() {
		s.publishDiagnostics(uri)
	}
}
