// Package schema turns untrusted model output into values of a fixed shape.
//
// Every stage follows the same contract: parse the raw text, check it
// against the stage schema, optionally ask the model once to rewrite it,
// and fall back to a coerced value that is always valid. Failures become
// warnings on the Outcome; nothing here returns an error to the pipeline.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrMissingJSON   = errors.New("no JSON object in response")
)

// ParseObject extracts a JSON object from model text. A response that is
// already an object is used as-is; otherwise the text between the first
// '{' and the last '}' is tried, which tolerates prose and code fences
// around the object.
func ParseObject(raw string) (map[string]any, error) {
	payload, err := objectPayload(raw)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if obj == nil {
		return nil, ErrMissingJSON
	}
	return obj, nil
}

func objectPayload(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyResponse
	}
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, nil
	}
	first := strings.Index(trimmed, "{")
	last := strings.LastIndex(trimmed, "}")
	if first == -1 || last <= first {
		return "", ErrMissingJSON
	}
	return trimmed[first : last+1], nil
}

// stringField reports v as a string. nil becomes "", other scalars are
// formatted.
func stringField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool, float64, json.Number:
		return fmt.Sprint(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
