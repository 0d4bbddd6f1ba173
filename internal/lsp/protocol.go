// Package lsp implements the stdio transport of the language server:
// Content-Length framed JSON-RPC 2.0 plus the request dispatch loop.
package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// JSON-RPC error codes.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeServerNotInitialized = -32002
)

// Message is a JSON-RPC request, notification, or response. A message
// with a method is incoming traffic; a nil ID marks a notification. The
// ID is kept raw because clients may use numbers or strings.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// IsNotification reports whether the message expects no response.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// ResponseError is a JSON-RPC error payload.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("jsonrpc %d: %s", e.Code, e.Message)
}

// Conn frames JSON-RPC messages over a reader/writer pair, usually stdin
// and stdout. Reads are single-consumer; writes are safe for concurrent
// use.
type Conn struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	nextID  atomic.Int64
}

// NewConn returns a connection reading from r and writing to w.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// Read blocks for the next framed message.
func (c *Conn) Read() (*Message, error) {
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("malformed Content-Length: %w", err)
			}
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return &msg, nil
}

func (c *Conn) write(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err = c.writer.Write(body)
	return err
}

// Reply sends a successful response. A nil result is sent as JSON null.
func (c *Conn) Reply(id json.RawMessage, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.write(&Message{JSONRPC: JSONRPCVersion, ID: id, Result: raw})
}

// ReplyError sends an error response.
func (c *Conn) ReplyError(id json.RawMessage, code int, message string) error {
	return c.write(&Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message},
	})
}

// Notify sends a notification.
func (c *Conn) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return c.write(&Message{JSONRPC: JSONRPCVersion, Method: method, Params: raw})
}

// Request sends a server-to-client request. The client's response is read
// by the main loop and discarded; this server never waits on one.
func (c *Conn) Request(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	id, err := json.Marshal(c.nextID.Add(1))
	if err != nil {
		return err
	}
	return c.write(&Message{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: raw})
}
