package schema

import (
	"sort"
	"strings"
)

// Classification is the classifier's choice.
type Classification struct {
	Area      string `json:"area"`
	Rationale string `json:"rationale"`
	// Substituted is set when the model's label was not allowed.
	Substituted bool `json:"-"`
}

// ClassificationSchema validates classifier output against a label set.
type ClassificationSchema struct {
	allowed []string
}

// NewClassificationSchema creates the schema. Labels are trimmed,
// deduplicated and sorted; the first one is the fallback.
func NewClassificationSchema(allowed []string) *ClassificationSchema {
	seen := make(map[string]bool)
	var labels []string
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		labels = append(labels, a)
	}
	sort.Strings(labels)
	return &ClassificationSchema{allowed: labels}
}

func (s *ClassificationSchema) Name() string { return "Classifier" }

// Allowed returns the sorted label set.
func (s *ClassificationSchema) Allowed() []string { return append([]string(nil), s.allowed...) }

func (s *ClassificationSchema) Parse(raw string) (any, error) {
	obj, err := ParseObject(raw)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// NeedsRepair is false: a bad label is substituted, not repaired.
func (s *ClassificationSchema) NeedsRepair(any) bool { return false }

// Validate requires a non-empty string area. A label outside the allowed
// set becomes the lexicographically smallest allowed label.
func (s *ClassificationSchema) Validate(parsed any) (Classification, error) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return Classification{}, &SchemaError{Schema: "classification", Reason: "not a JSON object"}
	}
	area, ok := obj["area"].(string)
	if !ok || strings.TrimSpace(area) == "" {
		return Classification{}, &SchemaError{Schema: "classification", Reason: "missing or empty", Fields: []string{"area"}}
	}
	rationale, _ := obj["rationale"].(string)

	out := Classification{Area: strings.TrimSpace(area), Rationale: strings.TrimSpace(rationale)}
	if len(s.allowed) > 0 && !s.isAllowed(out.Area) {
		out.Area = s.allowed[0]
		out.Substituted = true
	}
	return out, nil
}

// Coerce falls back to the first allowed label.
func (s *ClassificationSchema) Coerce(parsed any) Classification {
	out := Classification{Substituted: true}
	if len(s.allowed) > 0 {
		out.Area = s.allowed[0]
	}
	if obj, ok := parsed.(map[string]any); ok {
		if r, ok := obj["rationale"].(string); ok {
			out.Rationale = strings.TrimSpace(r)
		}
	}
	return out
}

func (s *ClassificationSchema) RepairPrompt(raw string) string {
	return `Return ONLY a JSON object {"area":"<one of: ` + strings.Join(s.allowed, ", ") +
		`>","rationale":"<1-3 short sentences>"} rewriting this output:` + "\n" + raw
}

func (s *ClassificationSchema) isAllowed(label string) bool {
	i := sort.SearchStrings(s.allowed, label)
	return i < len(s.allowed) && s.allowed[i] == label
}

var _ Schema[Classification] = (*ClassificationSchema)(nil)
