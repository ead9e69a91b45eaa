package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// StepCount is the fixed number of solution steps.
const StepCount = 3

// ExtractionKeys names the three output keys.
type ExtractionKeys struct {
	Problem    string
	Steps      string
	Conclusion string
}

// Spellings of the problem key. The historical one is the default.
const (
	SpellingHistorical = "artcle"
	SpellingCorrected  = "article"
)

// DefaultExtractionKeys returns the key set for the given spelling of
// "article" in the problem key. Unknown spellings use the historical one.
func DefaultExtractionKeys(spelling string) ExtractionKeys {
	word := SpellingHistorical
	if strings.EqualFold(strings.TrimSpace(spelling), SpellingCorrected) {
		word = SpellingCorrected
	}
	return ExtractionKeys{
		Problem:    fmt.Sprintf("what problem does the %s propose to solve?", word),
		Steps:      "step by step on how to solve it",
		Conclusion: "conclusion",
	}
}

// List returns the keys in output order.
func (k ExtractionKeys) List() []string {
	return []string{k.Problem, k.Steps, k.Conclusion}
}

// Extraction is the structured summary of an article.
type Extraction struct {
	Keys       ExtractionKeys `json:"-"`
	Problem    string
	Steps      []string
	Conclusion string
}

// EmptyExtraction returns the all-empty value for keys.
func EmptyExtraction(keys ExtractionKeys) Extraction {
	return Extraction{Keys: keys, Steps: make([]string, StepCount)}
}

// Map returns the extraction under its three keys.
func (e Extraction) Map() map[string]any {
	steps := make([]any, len(e.Steps))
	for i, s := range e.Steps {
		steps[i] = s
	}
	return map[string]any{
		e.Keys.Problem:    e.Problem,
		e.Keys.Steps:      steps,
		e.Keys.Conclusion: e.Conclusion,
	}
}

// MarshalJSON writes the three keys in their fixed order.
func (e Extraction) MarshalJSON() ([]byte, error) {
	steps := e.Steps
	if steps == nil {
		steps = []string{}
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range []struct {
		key string
		val any
	}{
		{e.Keys.Problem, e.Problem},
		{e.Keys.Steps, steps},
		{e.Keys.Conclusion, e.Conclusion},
	} {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.val)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ExtractionSchema validates extractor output.
type ExtractionSchema struct {
	keys ExtractionKeys
}

// NewExtractionSchema creates the schema for keys.
func NewExtractionSchema(keys ExtractionKeys) *ExtractionSchema {
	return &ExtractionSchema{keys: keys}
}

func (s *ExtractionSchema) Name() string { return "Extractor" }

func (s *ExtractionSchema) Parse(raw string) (any, error) {
	obj, err := ParseObject(raw)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// NeedsRepair is true unless the key set is exactly the expected one and
// every field has the right JSON type.
func (s *ExtractionSchema) NeedsRepair(parsed any) bool {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return true
	}
	if len(s.keyProblems(obj)) > 0 {
		return true
	}
	return len(s.typeProblems(obj)) > 0
}

func (s *ExtractionSchema) keyProblems(obj map[string]any) []string {
	var problems []string
	for _, k := range s.keys.List() {
		if _, ok := obj[k]; !ok {
			problems = append(problems, "missing "+k)
		}
	}
	var extra []string
	for k := range obj {
		if k != s.keys.Problem && k != s.keys.Steps && k != s.keys.Conclusion {
			extra = append(extra, "unexpected "+k)
		}
	}
	sort.Strings(extra)
	return append(problems, extra...)
}

func (s *ExtractionSchema) typeProblems(obj map[string]any) []string {
	var problems []string
	if _, ok := obj[s.keys.Problem].(string); !ok {
		problems = append(problems, s.keys.Problem+" must be a string")
	}
	steps, ok := obj[s.keys.Steps].([]any)
	if !ok {
		problems = append(problems, s.keys.Steps+" must be a list")
	} else {
		for i, step := range steps {
			if _, ok := step.(string); !ok {
				problems = append(problems, fmt.Sprintf("%s[%d] must be a string", s.keys.Steps, i))
			}
		}
	}
	if _, ok := obj[s.keys.Conclusion].(string); !ok {
		problems = append(problems, s.keys.Conclusion+" must be a string")
	}
	return problems
}

// Validate requires the exact key set and field types. The step list is
// padded or truncated to StepCount.
func (s *ExtractionSchema) Validate(parsed any) (Extraction, error) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return Extraction{}, &SchemaError{Schema: "extraction", Reason: "not a JSON object"}
	}
	if problems := s.keyProblems(obj); len(problems) > 0 {
		return Extraction{}, &SchemaError{Schema: "extraction", Reason: "key set mismatch", Fields: problems}
	}
	if problems := s.typeProblems(obj); len(problems) > 0 {
		return Extraction{}, &SchemaError{Schema: "extraction", Reason: "wrong field types", Fields: problems}
	}
	return s.Coerce(obj), nil
}

// Coerce keeps the three expected fields of parsed, stringifies them and
// fixes the step count. Unknown keys are dropped.
func (s *ExtractionSchema) Coerce(parsed any) Extraction {
	out := EmptyExtraction(s.keys)
	obj, ok := parsed.(map[string]any)
	if !ok {
		return out
	}
	out.Problem = stringField(obj[s.keys.Problem])
	out.Conclusion = stringField(obj[s.keys.Conclusion])
	if steps, ok := obj[s.keys.Steps].([]any); ok {
		for i := 0; i < StepCount && i < len(steps); i++ {
			out.Steps[i] = stringField(steps[i])
		}
	}
	return out
}

func (s *ExtractionSchema) RepairPrompt(raw string) string {
	keys, _ := json.Marshal(s.keys.List())
	return "Return ONLY valid JSON.\n" +
		"Use EXACTLY these keys:\n" +
		string(keys) + "\n\n" +
		"Do not change the language of the values.\n\n" +
		"Here is your previous output (may be invalid JSON). Convert it to valid JSON with the keys above:\n" +
		raw
}

var _ Schema[Extraction] = (*ExtractionSchema)(nil)
