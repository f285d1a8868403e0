// Package transport implements the minimal JSON-RPC 2.0 over HTTP contract
// spoken by the zotero-mcp knowledge service: the initialize handshake, tool
// listing and tool invocation. A single logical call may be answered either as
// a buffered JSON document or as a server-sent event stream carrying exactly
// one envelope; the Client handles both framings transparently.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/hupe1980/zoterochat/logging"
)

const (
	endpointPath    = "/mcp"
	protocolVersion = "2025-03-26"
	clientName      = "zotero-chat-go"
	clientVersion   = "0.1.0"

	// Header through which the service issues and expects its session token.
	sessionHeader = "Mcp-Session-Id"

	// Cap on error-body snippets kept in TransportError values.
	maxBodySnippet = 200
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"` // omitted for notifications
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// Tool describes one server-defined operation returned by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Options configures a Client.
type Options struct {
	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	// SSE responses are long-lived, so a client without an overall timeout
	// should be used; per-call deadlines belong on the context.
	HTTPClient *http.Client
	// Logger receives wire-level debug output. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Client is a JSON-RPC caller that is stateless except for its session: a
// monotonic request-id counter and the session token the service issued.
// All methods are safe for concurrent use; concurrent callers share one
// logical session with the knowledge service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger

	mu          sync.Mutex
	sessionID   string
	nextID      int64
	initialized bool
}

// NewClient constructs a Client for the knowledge service at baseURL
// (e.g. "http://127.0.0.1:8000").
func NewClient(baseURL string, optFns ...func(o *Options)) *Client {
	opts := Options{
		HTTPClient: http.DefaultClient,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		nextID:     1,
	}
}

// Initialize performs the protocol handshake. It is idempotent: a second call
// on an already initialized client is a no-op. The follow-up "initialized"
// notification is fire-and-forget; its failure is never surfaced.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	result, err := c.send(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	if err != nil {
		return err
	}
	if len(result) == 0 || string(result) == "null" {
		return fmt.Errorf("mcp initialize returned no result")
	}

	c.sendNotification(ctx, "notifications/initialized", map[string]any{})

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()
	return nil
}

// ListTools returns the tools the service exposes, or an empty slice when the
// result carries none.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := c.send(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Tools []Tool `json:"tools"`
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &parsed); err != nil {
			return nil, &TransportError{Body: snippet(result), Err: err}
		}
	}
	return parsed.Tools, nil
}

// CallTool invokes a named tool and concatenates all text-typed content
// blocks of the result with newline separators. A result without content
// yields an empty string. This is the only channel through which retrieval
// operations reach the knowledge service.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	result, err := c.send(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	if len(result) == 0 {
		return "", nil
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return "", &TransportError{Body: snippet(result), Err: err}
	}

	var texts []string
	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// Close resets initialization and session state. It does not terminate any
// underlying connection beyond what in-flight request handling already manages.
func (c *Client) Close() {
	c.mu.Lock()
	c.initialized = false
	c.sessionID = ""
	c.mu.Unlock()
}

// send issues one JSON-RPC request and returns its raw result. It attaches
// the session header when a session is known, adopts whatever session id the
// response supplies, and branches on the response framing.
func (c *Client) send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	sid := c.sessionID
	c.mu.Unlock()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpointPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sid != "" {
		req.Header.Set(sessionHeader, sid)
	}

	c.logger.Debug("mcp request", "method", method, "id", id)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	c.adoptSession(resp.Header.Get(sessionHeader))

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return nil, &TransportError{Status: resp.StatusCode, Body: string(b)}
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		// Closing resp.Body on return tears down the stream once the first
		// envelope has been read; the service keeps SSE channels open.
		return c.readEventStream(resp.Body)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	var envelope rpcResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &TransportError{Body: snippet(raw), Err: err}
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	return envelope.Result, nil
}

// readEventStream scans an SSE body for the first "data: " line that parses
// as a JSON-RPC envelope. Incomplete trailing lines are buffered across reads,
// so an envelope arriving byte-by-byte is still reassembled. A stream that
// ends without a parseable data line resolves to an empty result.
func (c *Client) readEventStream(r io.Reader) (json.RawMessage, error) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err == nil {
			line = strings.TrimRight(line, "\r\n")
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				data = strings.TrimSpace(data)
				if data == "" {
					continue
				}
				var envelope rpcResponse
				if json.Unmarshal([]byte(data), &envelope) != nil {
					// Not a JSON envelope; keep scanning.
					continue
				}
				if envelope.Error != nil {
					return nil, envelope.Error
				}
				return envelope.Result, nil
			}
			continue
		}
		if err == io.EOF {
			// Server closed the stream with nothing more to say.
			return nil, nil
		}
		return nil, &TransportError{Err: err}
	}
}

// sendNotification sends a request without an id and discards the response.
// Notifications never fail observably; connection errors are swallowed.
func (c *Client) sendNotification(ctx context.Context, method string, params any) {
	c.mu.Lock()
	sid := c.sessionID
	c.mu.Unlock()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpointPath, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if sid != "" {
		req.Header.Set(sessionHeader, sid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("mcp notification dropped", "method", method, "error", err)
		return
	}
	defer resp.Body.Close()
	c.adoptSession(resp.Header.Get(sessionHeader))
	_, _ = io.Copy(io.Discard, resp.Body)
}

// adoptSession records the session id the service last supplied. The id is
// never chosen client-side; the most recent response wins.
func (c *Client) adoptSession(sid string) {
	if sid == "" {
		return
	}
	c.mu.Lock()
	c.sessionID = sid
	c.mu.Unlock()
}

func snippet(b []byte) string {
	if len(b) > maxBodySnippet {
		b = b[:maxBodySnippet]
	}
	return string(b)
}
