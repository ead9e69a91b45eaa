package pipeline

import (
	"context"
	"strings"

	"articlereview/internal/types"
)

// inputID names the user's document in ingestion warnings.
const inputID = "input"

// normalize fills NormalizedText. Text input is used as-is; pdf and url
// input go through ingestion and cleaning.
func (r *run) normalize(ctx context.Context) (StageStatus, string) {
	st := r.state
	value := strings.TrimSpace(st.InputValue)
	if value == "" {
		return StatusFailed, r.warn("Empty input value; cannot normalize.")
	}

	kind, ok := types.ParseInputKind(string(st.InputKind))
	if !ok {
		note := r.warn("Unsupported input kind %q; treating as text.", st.InputKind)
		st.NormalizedText = value
		return StatusDegraded, note
	}
	if kind == types.InputText {
		st.NormalizedText = value
		return StatusOK, ""
	}

	text, warnings, err := r.normalizer.Normalize(ctx, kind, value)
	for _, w := range warnings {
		st.Warn("%s", w)
	}
	if err != nil {
		st.NormalizedText = ""
		return StatusFailed, r.warn("Failed to ingest %s input (id=%s): %v", kind, inputID, err)
	}

	st.NormalizedText = strings.TrimSpace(text)
	if st.NormalizedText == "" {
		return StatusDegraded, r.warn("%s ingestion produced empty text (id=%s).", kind, inputID)
	}
	return StatusOK, ""
}
