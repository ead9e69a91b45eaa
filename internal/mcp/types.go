// Package mcp bridges synchronous callers onto one long-lived Model Context
// Protocol session with the retrieval service.
package mcp

import (
	"context"
	"encoding/json"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "articlereview"
	clientVersion   = "1.0.0"
)

// mcpRequest represents a JSON-RPC request or notification (ID == 0).
type mcpRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// mcpResponse represents a JSON-RPC response.
type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
}

// mcpError represents an error in a JSON-RPC response.
type mcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ToolSchema describes one tool advertised by the server.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ServerInfo is what the server reports during the initialize handshake.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"-"`
}

func initializeParams() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    clientName,
			"version": clientVersion,
		},
	}
}

func parseInitializeResult(raw json.RawMessage) (*ServerInfo, error) {
	var result struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      ServerInfo `json:"serverInfo"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	info := result.ServerInfo
	info.ProtocolVersion = result.ProtocolVersion
	return &info, nil
}

// Transport is one connection to an MCP server. Implementations are not
// required to be safe for concurrent use; the Bridge worker is their only
// caller.
type Transport interface {
	// Connect opens the underlying connection.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Safe to call more than once.
	Disconnect() error

	// Initialize performs the initialize handshake.
	Initialize(ctx context.Context) (*ServerInfo, error)

	// ListTools retrieves available tools from the server.
	ListTools(ctx context.Context) ([]ToolSchema, error)

	// CallTool invokes a tool and returns the raw JSON-RPC result.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error)

	// Ping checks if the server is responsive.
	Ping(ctx context.Context) error

	// IsConnected returns current connection status.
	IsConnected() bool
}

// TransportFactory builds a fresh, unconnected transport for each session.
type TransportFactory func() (Transport, error)
