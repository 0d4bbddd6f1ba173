package lsp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cardmail/cardmail/internal/config"
)

type testClient struct {
	t      *testing.T
	conn   *Conn
	msgs   chan *Message
	done   chan error
	nextID int
}

func startServer(t *testing.T) *testClient {
	t.Helper()

	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()
	t.Cleanup(func() {
		clientOut.Close()
		serverOut.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	configFile := filepath.Join(t.TempDir(), "absent.yaml")
	srv := NewServer(NewConn(serverIn, serverOut), logger, "test", configFile, config.Settings{})

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	c := &testClient{
		t:    t,
		conn: NewConn(clientIn, clientOut),
		msgs: make(chan *Message, 64),
		done: done,
	}
	go func() {
		for {
			msg, err := c.conn.Read()
			if err != nil {
				close(c.msgs)
				return
			}
			c.msgs <- msg
		}
	}()
	return c
}

func (c *testClient) next() *Message {
	c.t.Helper()
	select {
	case msg, ok := <-c.msgs:
		if !ok {
			c.t.Fatal("server closed the connection")
		}
		return msg
	case <-time.After(5 * time.Second):
		c.t.Fatal("timed out waiting for a server message")
	}
	return nil
}

// call sends a request and drains server traffic until its response.
func (c *testClient) call(method string, params any) *Message {
	c.t.Helper()
	c.nextID++
	id := strconv.Itoa(c.nextID)
	raw, err := json.Marshal(params)
	if err != nil {
		c.t.Fatal(err)
	}
	err = c.conn.write(&Message{
		JSONRPC: JSONRPCVersion,
		ID:      json.RawMessage(id),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		c.t.Fatal(err)
	}
	for {
		msg := c.next()
		if msg.Method == "" && string(msg.ID) == id {
			return msg
		}
	}
}

func (c *testClient) notifyServer(method string, params any) {
	c.t.Helper()
	if err := c.conn.Notify(method, params); err != nil {
		c.t.Fatal(err)
	}
}

// notification drains server traffic until the named notification arrives.
func (c *testClient) notification(method string) *Message {
	c.t.Helper()
	for {
		if msg := c.next(); msg.Method == method {
			return msg
		}
	}
}

func (c *testClient) initialize(options any) InitializeResult {
	c.t.Helper()
	raw, err := json.Marshal(options)
	if err != nil {
		c.t.Fatal(err)
	}
	resp := c.call("initialize", InitializeParams{InitializationOptions: raw})
	if resp.Error != nil {
		c.t.Fatalf("initialize failed: %v", resp.Error)
	}
	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		c.t.Fatal(err)
	}
	c.notifyServer("initialized", struct{}{})
	return result
}

func cardDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	card := "BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Jane Doe\r\nEMAIL:jane@example.com\r\nEND:VCARD\r\n"
	if err := os.WriteFile(filepath.Join(dir, "jane.vcf"), []byte(card), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func initOptions(dir string) map[string]any {
	return map[string]any{"vcard_dir": dir, "watch": false}
}

func TestServerInitializeCapabilities(t *testing.T) {
	c := startServer(t)
	result := c.initialize(initOptions(cardDir(t)))

	caps := result.Capabilities
	if caps.PositionEncoding != "utf-16" {
		t.Errorf("positionEncoding = %q, want utf-16", caps.PositionEncoding)
	}
	if !caps.HoverProvider || !caps.DefinitionProvider || !caps.CodeActionProvider {
		t.Errorf("providers missing from capabilities: %+v", caps)
	}
	if caps.CompletionProvider == nil || !caps.CompletionProvider.ResolveProvider {
		t.Errorf("completionProvider = %+v", caps.CompletionProvider)
	}
	if caps.TextDocumentSync == nil || caps.TextDocumentSync.Change != SyncIncremental {
		t.Errorf("textDocumentSync = %+v", caps.TextDocumentSync)
	}

	commands := strings.Join(caps.ExecuteCommandProvider.Commands, " ")
	if !strings.Contains(commands, CommandReloadContacts) || !strings.Contains(commands, CommandCreateContact) {
		t.Errorf("commands = %q", commands)
	}
}

func TestServerHoverAndDiagnostics(t *testing.T) {
	c := startServer(t)
	c.initialize(initOptions(cardDir(t)))

	text := "To: jane@example.com, nobody@example.com\n\n"
	c.notifyServer("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: "file:///draft.eml", Version: 1, Text: text},
	})

	note := c.notification("textDocument/publishDiagnostics")
	var diags PublishDiagnosticsParams
	if err := json.Unmarshal(note.Params, &diags); err != nil {
		t.Fatal(err)
	}
	if diags.URI != "file:///draft.eml" || diags.Version == nil || *diags.Version != 1 {
		t.Errorf("unexpected publish params: %+v", diags)
	}
	if len(diags.Diagnostics) != 1 {
		t.Fatalf("got %d diagnostics, want 1 for the unknown address: %+v", len(diags.Diagnostics), diags.Diagnostics)
	}
	d := diags.Diagnostics[0]
	if d.Severity != DiagnosticSeverityHint || d.Message != "Address is not in contacts" {
		t.Errorf("unexpected diagnostic: %+v", d)
	}
	want := Range{Start: Position{0, 22}, End: Position{0, 40}}
	if d.Range != want {
		t.Errorf("diagnostic range = %+v, want %+v", d.Range, want)
	}

	resp := c.call("textDocument/hover", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///draft.eml"},
		Position:     Position{Line: 0, Character: 6},
	})
	if resp.Error != nil {
		t.Fatalf("hover failed: %v", resp.Error)
	}
	var hov Hover
	if err := json.Unmarshal(resp.Result, &hov); err != nil {
		t.Fatal(err)
	}
	if hov.Contents.Kind != MarkupKindMarkdown || !strings.Contains(hov.Contents.Value, "# Jane Doe") {
		t.Errorf("unexpected hover: %+v", hov)
	}
	if hov.Range == nil || *hov.Range != (Range{Start: Position{0, 4}, End: Position{0, 20}}) {
		t.Errorf("hover range = %+v", hov.Range)
	}

	resp = c.call("textDocument/definition", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///draft.eml"},
		Position:     Position{Line: 0, Character: 6},
	})
	var loc Location
	if err := json.Unmarshal(resp.Result, &loc); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(loc.URI, "/jane.vcf") || !strings.HasPrefix(loc.URI, "file://") {
		t.Errorf("definition URI = %q", loc.URI)
	}
}

func TestServerCompletion(t *testing.T) {
	c := startServer(t)
	c.initialize(initOptions(cardDir(t)))

	c.notifyServer("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: "file:///draft.eml", Version: 1, Text: "To: jan\n\n"},
	})

	resp := c.call("textDocument/completion", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///draft.eml"},
		Position:     Position{Line: 0, Character: 7},
	})
	if resp.Error != nil {
		t.Fatalf("completion failed: %v", resp.Error)
	}
	var list CompletionList
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.IsIncomplete {
		t.Fatalf("unexpected list: %+v", list)
	}
	item := list.Items[0]
	if item.Label != `"Jane Doe" <jane@example.com>` {
		t.Errorf("label = %q", item.Label)
	}
	if item.TextEdit == nil || item.TextEdit.Range != (Range{Start: Position{0, 4}, End: Position{0, 7}}) {
		t.Errorf("textEdit = %+v", item.TextEdit)
	}

	resolved := c.call("completionItem/resolve", item)
	var back CompletionItem
	if err := json.Unmarshal(resolved.Result, &back); err != nil {
		t.Fatal(err)
	}
	if back.Documentation == nil || !strings.Contains(back.Documentation.Value, "# Jane Doe") {
		t.Errorf("resolve added no documentation: %+v", back)
	}
}

func TestServerDisabledHover(t *testing.T) {
	c := startServer(t)
	result := c.initialize(map[string]any{
		"vcard_dir":    cardDir(t),
		"watch":        false,
		"enable_hover": false,
	})

	if result.Capabilities.HoverProvider {
		t.Error("disabled hover still advertised")
	}

	resp := c.call("textDocument/hover", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///draft.eml"},
	})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("hover on a disabled server: %+v", resp.Error)
	}
}

func TestServerDropsNotificationsBeforeInitialize(t *testing.T) {
	c := startServer(t)

	// An eager client may open documents before the handshake; they are
	// dropped, not served, and must not take the server down.
	c.notifyServer("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: "file:///draft.eml", Version: 1, Text: "To: jane@example.com\n\n"},
	})

	result := c.initialize(initOptions(cardDir(t)))
	if !result.Capabilities.HoverProvider {
		t.Error("server did not come up after a premature notification")
	}

	resp := c.call("textDocument/hover", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///draft.eml"},
		Position:     Position{Line: 0, Character: 6},
	})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("the premature didOpen should have been dropped, got %+v", resp.Error)
	}
}

func TestServerRejectsRequestsBeforeInitialize(t *testing.T) {
	c := startServer(t)
	resp := c.call("textDocument/hover", TextDocumentPositionParams{})
	if resp.Error == nil || resp.Error.Code != CodeServerNotInitialized {
		t.Errorf("got %+v, want server-not-initialized", resp.Error)
	}
}

func TestServerExecuteReloadCommand(t *testing.T) {
	c := startServer(t)
	c.initialize(initOptions(cardDir(t)))

	resp := c.call("workspace/executeCommand", ExecuteCommandParams{Command: CommandReloadContacts})
	if resp.Error != nil {
		t.Fatalf("reload failed: %v", resp.Error)
	}
	var warnings []string
	if err := json.Unmarshal(resp.Result, &warnings); err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("clean reload reported warnings: %v", warnings)
	}

	resp = c.call("workspace/executeCommand", ExecuteCommandParams{Command: "bogus"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("unknown command: %+v", resp.Error)
	}
}

func TestServerCodeActionAndCreateContact(t *testing.T) {
	dir := cardDir(t)
	c := startServer(t)
	c.initialize(initOptions(dir))

	text := "To: Sam Stranger <sam@example.org>\n\n"
	c.notifyServer("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: "file:///draft.eml", Version: 1, Text: text},
	})

	at := Position{Line: 0, Character: strings.Index(text, "sam@")}
	resp := c.call("textDocument/codeAction", CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///draft.eml"},
		Range:        Range{Start: at, End: at},
	})
	if resp.Error != nil {
		t.Fatalf("codeAction failed: %v", resp.Error)
	}
	var actions []CodeAction
	if err := json.Unmarshal(resp.Result, &actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].Title != "Add to contacts" {
		t.Fatalf("unexpected actions: %+v", actions)
	}
	cmd := actions[0].Command
	if cmd == nil || cmd.Command != CommandCreateContact {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	resp = c.call("workspace/executeCommand", ExecuteCommandParams{
		Command:   cmd.Command,
		Arguments: cmd.Arguments,
	})
	if resp.Error != nil {
		t.Fatalf("create_contact failed: %v", resp.Error)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d card files, want the existing card plus the created one", len(entries))
	}

	// The new contact is indexed, so the same code action disappears.
	resp = c.call("textDocument/codeAction", CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///draft.eml"},
		Range:        Range{Start: at, End: at},
	})
	actions = nil
	if err := json.Unmarshal(resp.Result, &actions); err != nil {
		t.Fatal(err)
	}
	if len(actions) != 0 {
		t.Errorf("code action still offered for an indexed address: %+v", actions)
	}
}

func TestServerShutdownExit(t *testing.T) {
	c := startServer(t)
	c.initialize(initOptions(cardDir(t)))

	resp := c.call("shutdown", nil)
	if resp.Error != nil || string(resp.Result) != "null" {
		t.Fatalf("shutdown reply: %+v", resp)
	}

	resp = c.call("textDocument/hover", TextDocumentPositionParams{})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("request after shutdown: %+v", resp.Error)
	}

	c.notifyServer("exit", nil)
	select {
	case err := <-c.done:
		if err != nil {
			t.Errorf("Run returned %v after a clean shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
	}
}

func TestServerExitWithoutShutdown(t *testing.T) {
	c := startServer(t)
	c.initialize(initOptions(cardDir(t)))

	c.notifyServer("exit", nil)
	select {
	case err := <-c.done:
		if err == nil {
			t.Error("exit without shutdown should be an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
	}
}
