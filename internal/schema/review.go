package schema

import "strings"

// Review section markers.
const (
	MarkerTitle     = "## Resenha"
	MarkerPositives = "**Pontos positivos:**"
	MarkerFlaws     = "**Possíveis falhas:**"
	MarkerFinal     = "**Comentários finais:**"
)

// reviewScaffold holds empty versions of the required sections.
const reviewScaffold = MarkerTitle + "\n" +
	MarkerPositives + " \n\n" +
	MarkerFlaws + " \n\n" +
	MarkerFinal + " \n\n"

// ParseReview drops anything the model wrote before the review title.
func ParseReview(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, MarkerTitle); i > 0 {
		return raw[i:]
	}
	return raw
}

// HasMinSections reports whether md carries the three required markers.
func HasMinSections(md string) bool {
	return strings.Contains(md, MarkerTitle) &&
		strings.Contains(md, MarkerPositives) &&
		strings.Contains(md, MarkerFlaws)
}

// EnsureMinSections returns md trimmed, with the section scaffold prepended
// when any required marker is missing. Applying it twice gives the same
// text as applying it once.
func EnsureMinSections(md string) string {
	md = strings.TrimSpace(md)
	if HasMinSections(md) {
		return md
	}
	if md == "" {
		return strings.TrimSpace(reviewScaffold)
	}
	return reviewScaffold + "\n" + md
}

// ReviewSchema post-processes reviewer Markdown. It never needs repair.
type ReviewSchema struct{}

func (ReviewSchema) Name() string { return "Review" }

func (ReviewSchema) Parse(raw string) (any, error) { return ParseReview(raw), nil }

func (ReviewSchema) NeedsRepair(any) bool { return false }

func (ReviewSchema) Validate(parsed any) (string, error) {
	md, ok := parsed.(string)
	if !ok {
		return "", &SchemaError{Schema: "review", Reason: "review must be text"}
	}
	return EnsureMinSections(md), nil
}

func (ReviewSchema) Coerce(parsed any) string {
	md, _ := parsed.(string)
	return EnsureMinSections(md)
}

func (ReviewSchema) RepairPrompt(raw string) string { return raw }

var _ Schema[string] = ReviewSchema{}
