package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"articlereview/internal/logging"
)

// LaunchConfig describes the retrieval service child process.
type LaunchConfig struct {
	Command string
	Args    []string
	// Env is appended to the inherited environment.
	Env []string
}

// LaunchConfigFromEnv reads MCP_SERVER_CMD and MCP_SERVER_ARGS (space
// separated), falling back to the given defaults.
func LaunchConfigFromEnv(defaultCmd string, defaultArgs []string) LaunchConfig {
	lc := LaunchConfig{Command: defaultCmd, Args: defaultArgs}
	if cmd := strings.TrimSpace(os.Getenv("MCP_SERVER_CMD")); cmd != "" {
		lc.Command = cmd
	}
	if args, ok := os.LookupEnv("MCP_SERVER_ARGS"); ok {
		lc.Args = strings.Fields(args)
	}
	return lc
}

// StdioTransport speaks newline-delimited JSON-RPC 2.0 over a pair of
// streams: the pipes of a child process, or any reader/writer pair.
type StdioTransport struct {
	mu sync.Mutex

	launch *LaunchConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	connected   bool
	eof         bool // reader loop has exited
	pendingReqs map[int]chan *mcpResponse
	nextID      int

	wg sync.WaitGroup
}

// NewStdioTransport creates a transport that launches lc on Connect.
func NewStdioTransport(lc LaunchConfig) *StdioTransport {
	return &StdioTransport{
		launch:      &lc,
		pendingReqs: make(map[int]chan *mcpResponse),
		nextID:      1,
	}
}

// NewStreamTransport creates a transport over existing streams. r carries
// server output, w carries client requests.
func NewStreamTransport(r io.Reader, w io.WriteCloser) *StdioTransport {
	return &StdioTransport{
		stdin:       w,
		stdout:      r,
		pendingReqs: make(map[int]chan *mcpResponse),
		nextID:      1,
	}
}

// Connect starts the child process (if any) and the reader loop.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	if t.launch != nil {
		if err := t.startProcess(); err != nil {
			return err
		}
	}
	if t.stdin == nil || t.stdout == nil {
		return fmt.Errorf("%w: stdio transport has no streams", ErrTransport)
	}

	t.connected = true

	if t.stderr != nil {
		t.wg.Add(1)
		go t.readStderr()
	}
	t.wg.Add(1)
	go t.readStdout()

	return nil
}

func (t *StdioTransport) startProcess() error {
	if t.launch.Command == "" {
		return fmt.Errorf("%w: empty command for stdio transport", ErrTransport)
	}

	t.cmd = exec.Command(t.launch.Command, t.launch.Args...)
	t.cmd.Env = append(os.Environ(), t.launch.Env...)

	var err error
	if t.stdin, err = t.cmd.StdinPipe(); err != nil {
		return fmt.Errorf("%w: failed to get stdin pipe: %w", ErrTransport, err)
	}
	if t.stdout, err = t.cmd.StdoutPipe(); err != nil {
		return fmt.Errorf("%w: failed to get stdout pipe: %w", ErrTransport, err)
	}
	if t.stderr, err = t.cmd.StderrPipe(); err != nil {
		return fmt.Errorf("%w: failed to get stderr pipe: %w", ErrTransport, err)
	}
	if err := t.cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start command %s: %w", ErrTransport, t.launch.Command, err)
	}
	logging.Tools("MCP stdio server started: %s %s (pid %d)", t.launch.Command, strings.Join(t.launch.Args, " "), t.cmd.Process.Pid)
	return nil
}

// Disconnect stops the child process and the reader loop.
func (t *StdioTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	} else if c, ok := t.stdout.(io.Closer); ok {
		_ = c.Close()
	}
	t.failPendingLocked()
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		logging.ToolsWarn("Timeout waiting for stdio transport goroutines to exit")
	}

	if t.cmd != nil {
		_ = t.cmd.Wait()
	}
	logging.Tools("MCP stdio transport disconnected")
	return nil
}

// failPendingLocked wakes every waiting caller with a closed channel.
func (t *StdioTransport) failPendingLocked() {
	for id, ch := range t.pendingReqs {
		close(ch)
		delete(t.pendingReqs, id)
	}
}

func (t *StdioTransport) readStderr() {
	defer t.wg.Done()
	scanner := bufio.NewScanner(t.stderr)
	for scanner.Scan() {
		logging.Tools("[STDERR] %s", scanner.Text())
	}
}

// readStdout dispatches responses to the waiting callers.
func (t *StdioTransport) readStdout() {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		t.eof = true
		t.failPendingLocked()
		t.mu.Unlock()
	}()

	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			ID     *json.RawMessage `json:"id"`
			Method string           `json:"method"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			logging.ToolsWarn("Failed to parse JSON from server: %v", err)
			continue
		}
		if probe.ID == nil || probe.Method != "" {
			logging.ToolsDebug("Received notification: %s", string(line))
			continue
		}

		var resp mcpResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.ToolsWarn("Failed to unmarshal response: %v", err)
			continue
		}

		t.mu.Lock()
		ch, exists := t.pendingReqs[resp.ID]
		if exists {
			delete(t.pendingReqs, resp.ID)
			ch <- &resp
		} else {
			logging.ToolsWarn("Received response for unknown ID: %d", resp.ID)
		}
		t.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		t.mu.Lock()
		connected := t.connected
		t.mu.Unlock()
		if connected {
			logging.Get(logging.CategoryTools).Error("Error reading server output: %v", err)
		}
	}
}

func (t *StdioTransport) writeLocked(msg mcpRequest) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: failed to write request: %w", ErrTransport, err)
	}
	return nil
}

// call sends a request and waits for its response.
func (t *StdioTransport) call(ctx context.Context, method string, params interface{}) (*mcpResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: not connected to MCP server", ErrTransport)
	}
	if t.eof {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: connection closed", ErrTransport)
	}

	id := t.nextID
	t.nextID++
	ch := make(chan *mcpResponse, 1)
	t.pendingReqs[id] = ch

	if err := t.writeLocked(mcpRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, err
	}
	t.mu.Unlock()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, fmt.Errorf("%w: connection closed", ErrTransport)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: MCP error %d: %s", ErrProtocol, resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pendingReqs, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// notify sends a notification; no response is expected.
func (t *StdioTransport) notify(method string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return fmt.Errorf("%w: not connected to MCP server", ErrTransport)
	}
	return t.writeLocked(mcpRequest{JSONRPC: "2.0", Method: method})
}

// Initialize performs the initialize handshake and sends
// notifications/initialized.
func (t *StdioTransport) Initialize(ctx context.Context) (*ServerInfo, error) {
	resp, err := t.call(ctx, "initialize", initializeParams())
	if err != nil {
		return nil, err
	}
	info, err := parseInitializeResult(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse initialize result: %w", ErrProtocol, err)
	}
	if err := t.notify("notifications/initialized"); err != nil {
		return nil, err
	}
	return info, nil
}

// ListTools retrieves available tools from the server.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
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
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
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
func (t *StdioTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	return err
}

// IsConnected reports whether the connection is open and the server has
// not gone away.
func (t *StdioTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.eof
}

var _ Transport = (*StdioTransport)(nil)
