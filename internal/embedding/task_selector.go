package embedding

import "strings"

// ContentType represents the type of content being embedded.
type ContentType string

const (
	ContentTypeQuery   ContentType = "query"   // Search queries built from an input article
	ContentTypeArticle ContentType = "article" // Corpus chunks being indexed
	ContentTypeSummary ContentType = "summary" // Short reference summaries
)

// SelectTaskType picks the GenAI task type for a content type. Queries and
// indexed chunks use the asymmetric retrieval pair.
func SelectTaskType(contentType ContentType) string {
	switch contentType {
	case ContentTypeQuery:
		return "RETRIEVAL_QUERY"
	case ContentTypeArticle:
		return "RETRIEVAL_DOCUMENT"
	default:
		return "SEMANTIC_SIMILARITY"
	}
}

var knownTaskTypes = map[string]bool{
	"SEMANTIC_SIMILARITY":  true,
	"CLASSIFICATION":       true,
	"CLUSTERING":           true,
	"RETRIEVAL_DOCUMENT":   true,
	"RETRIEVAL_QUERY":      true,
	"QUESTION_ANSWERING":   true,
	"FACT_VERIFICATION":    true,
	"CODE_RETRIEVAL_QUERY": true,
}

// NormalizeTaskType uppercases a configured task type and falls back to
// SEMANTIC_SIMILARITY for anything the API does not know.
func NormalizeTaskType(taskType string) string {
	t := strings.ToUpper(strings.TrimSpace(taskType))
	if knownTaskTypes[t] {
		return t
	}
	return "SEMANTIC_SIMILARITY"
}
