package ingest

import (
	"regexp"
	"strings"

	"articlereview/internal/types"
)

// Cleaning warnings.
const (
	WarnNullBytes       = "Null bytes removed during cleaning."
	WarnControlChars    = "Control characters removed during cleaning."
	WarnEmptyAfterClean = "Document content is empty after cleaning."
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	manyNewlines    = regexp.MustCompile(`\n{3,}`)
)

// CleanReport says what CleanText had to remove.
type CleanReport struct {
	NullBytes    int
	ControlChars int
}

// CleanText normalizes newlines, drops NUL and other control characters,
// collapses horizontal whitespace, trims every line and keeps at most one
// blank line between paragraphs. The result is deterministic.
func CleanText(text string) (string, CleanReport) {
	var rep CleanReport

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == 0:
			rep.NullBytes++
		case r == '\n' || r == '\t' || r >= 32:
			b.WriteRune(r)
		default:
			rep.ControlChars++
		}
	}
	text = horizontalSpace.ReplaceAllString(b.String(), " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), rep
}

// Clean rewrites doc.Content with CleanText and records warnings on doc.
func Clean(doc *types.Document) {
	text, rep := CleanText(doc.Content)
	if rep.NullBytes > 0 {
		doc.Warn(WarnNullBytes)
	}
	if rep.ControlChars > 0 {
		doc.Warn(WarnControlChars)
	}
	doc.Content = text
	if doc.Content == "" {
		doc.Warn(WarnEmptyAfterClean)
	}
}

// collapseWhitespace is the lighter cleanup applied to text pulled from a
// web page before it becomes document content.
func collapseWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceOrTab.ReplaceAllString(text, " ")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var spaceOrTab = regexp.MustCompile(`[ \t]+`)
