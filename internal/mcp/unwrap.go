package mcp

import (
	"bytes"
	"encoding/json"
	"strings"
)

// contentItem is one element of a tools/call content envelope.
type contentItem struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// UnwrapResult turns a raw tools/call result into a plain JSON value.
//
// A result without a "content" key is returned as-is. An envelope must hold
// exactly one text item and yields the JSON carried by that text. Error
// results, empty or multi-item envelopes and text that is not JSON are
// protocol errors.
func UnwrapResult(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, protocolErr("empty tool result")
	}

	var direct any
	if err := json.Unmarshal(raw, &direct); err != nil {
		return nil, protocolErr("tool result is not JSON: %v", err)
	}
	obj, ok := direct.(map[string]any)
	if !ok {
		return direct, nil
	}
	if _, hasContent := obj["content"]; !hasContent {
		return direct, nil
	}

	var env struct {
		Content []contentItem `json:"content"`
		IsError bool          `json:"isError"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, protocolErr("malformed content envelope: %v", err)
	}
	if env.IsError {
		return nil, protocolErr("tool reported an error: %s", envelopeText(env.Content))
	}
	if len(env.Content) == 0 {
		return nil, protocolErr("tool result has no content")
	}

	if len(env.Content) > 1 {
		return nil, protocolErr("tool result has %d content items, want 1", len(env.Content))
	}

	item := env.Content[0]
	if item.Text == nil {
		return nil, protocolErr("content[0] of type %q carries no text", item.Type)
	}
	text := strings.TrimSpace(*item.Text)
	if text == "" {
		return nil, protocolErr("content[0] is empty")
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, protocolErr("content[0] is not JSON: %v", err)
	}
	return v, nil
}

func envelopeText(items []contentItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.Text != nil {
			parts = append(parts, *item.Text)
		}
	}
	if len(parts) == 0 {
		return "no details"
	}
	return strings.Join(parts, "; ")
}
