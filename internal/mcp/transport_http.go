package mcp

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

	"articlereview/internal/logging"
)

const sessionHeader = "Mcp-Session-Id"

// HTTPTransport speaks JSON-RPC over HTTP POST to a retrieval service
// running remotely (mcp-go streamable HTTP endpoint).
type HTTPTransport struct {
	mu sync.Mutex

	baseURL   string
	client    *http.Client
	connected bool
	sessionID string
	nextID    int
}

// NewHTTPTransport creates a new HTTP transport. Per-call deadlines come
// from the caller's context.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		client:  &http.Client{},
		nextID:  1,
	}
}

// Connect marks the transport usable. The first round trip happens in
// Initialize.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.baseURL == "" {
		return fmt.Errorf("%w: empty base URL for http transport", ErrTransport)
	}
	t.connected = true
	return nil
}

// Disconnect ends the server session if one was issued.
func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	sid := t.sessionID
	t.sessionID = ""
	t.mu.Unlock()

	if sid != "" {
		req, err := http.NewRequest(http.MethodDelete, t.baseURL, nil)
		if err == nil {
			req.Header.Set(sessionHeader, sid)
			if resp, err := t.client.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}
	t.client.CloseIdleConnections()
	logging.Tools("MCP HTTP transport disconnected from %s", t.baseURL)
	return nil
}

// Initialize performs the initialize handshake and records the session id.
func (t *HTTPTransport) Initialize(ctx context.Context) (*ServerInfo, error) {
	resp, err := t.call(ctx, "initialize", initializeParams())
	if err != nil {
		return nil, err
	}
	info, err := parseInitializeResult(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse initialize result: %w", ErrProtocol, err)
	}
	if err := t.post(ctx, mcpRequest{JSONRPC: "2.0", Method: "notifications/initialized"}, nil); err != nil {
		return nil, err
	}
	logging.Tools("MCP HTTP transport connected to %s (%s %s)", t.baseURL, info.Name, info.Version)
	return info, nil
}

// ListTools retrieves available tools from the server.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse tools response: %w", ErrProtocol, err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool on the MCP server.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	resp, err := t.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Ping checks if the server is responsive.
func (t *HTTPTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	return err
}

// IsConnected returns current connection status.
func (t *HTTPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *HTTPTransport) call(ctx context.Context, method string, params interface{}) (*mcpResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: not connected to MCP server", ErrTransport)
	}
	id := t.nextID
	t.nextID++
	t.mu.Unlock()

	var resp mcpResponse
	if err := t.post(ctx, mcpRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: MCP error %d: %s", ErrProtocol, resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

// post sends one message. out is nil for notifications.
func (t *HTTPTransport) post(ctx context.Context, msg mcpRequest, out *mcpResponse) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	t.mu.Lock()
	if t.sessionID != "" {
		httpReq.Header.Set(sessionHeader, t.sessionID)
	}
	t.mu.Unlock()

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: request failed: %w", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if sid := httpResp.Header.Get(sessionHeader); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if httpResp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("%w: server returned status %d: %s", ErrTransport, httpResp.StatusCode, string(bodyBytes))
	}
	if out == nil {
		return nil
	}
	if strings.HasPrefix(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return readEventStream(httpResp.Body, msg.ID, out)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrProtocol, err)
	}
	return nil
}

// readEventStream scans SSE data lines until the response for id arrives.
// Interleaved server notifications are skipped.
func readEventStream(r io.Reader, id int, out *mcpResponse) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var probe struct {
			ID     *int   `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal([]byte(data), &probe); err != nil || probe.ID == nil || probe.Method != "" {
			continue
		}
		if *probe.ID != id {
			continue
		}
		if err := json.Unmarshal([]byte(data), out); err != nil {
			return fmt.Errorf("%w: failed to decode event: %w", ErrProtocol, err)
		}
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: event stream: %w", ErrTransport, err)
	}
	return fmt.Errorf("%w: event stream ended without a response", ErrTransport)
}

var _ Transport = (*HTTPTransport)(nil)
