package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"articlereview/internal/schema"
	"articlereview/internal/types"
)

// classify picks one area among those seen in the retrieved documents.
func (r *run) classify(ctx context.Context) (StageStatus, string) {
	st := r.state
	status, note := StatusOK, ""

	labels := r.retrievedAreas()
	if len(labels) == 0 {
		labels = types.KnownAreas()
		status, note = StatusDegraded, r.warn("Could not infer areas from retrieval; using placeholder labels.")
	}
	sch := schema.NewClassificationSchema(labels)
	allowed := sch.Allowed()

	raw, err := r.model.CompleteWithSystem(ctx,
		ClassifierPrompt(allowed, r.retrievedSummaries()),
		head(st.NormalizedText, classifyInputChars))
	if err != nil {
		st.ChosenArea = allowed[0]
		return StatusFailed, r.warn("Classifier call failed: %v", err)
	}

	out := schema.NewValidator[schema.Classification](sch, nil, false).Process(ctx, raw)
	for _, w := range out.Warnings {
		st.Warn("%s", w)
	}
	st.ChosenArea = out.Value.Area
	st.Rationale = out.Value.Rationale
	r.log.Info("Classified as %s: %s", st.ChosenArea, st.Rationale)

	switch {
	case out.Degraded:
		return StatusDegraded, fmt.Sprintf("fell back to %s", st.ChosenArea)
	case out.Value.Substituted:
		return StatusDegraded, fmt.Sprintf("label outside %s, using %s", strings.Join(allowed, ", "), st.ChosenArea)
	}
	return status, note
}

// retrievedAreas returns the sorted distinct areas of the enriched docs.
func (r *run) retrievedAreas() []string {
	seen := make(map[string]bool)
	var areas []string
	for _, e := range r.state.Retrieved {
		a := strings.TrimSpace(e.Doc.Area)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		areas = append(areas, a)
	}
	sort.Strings(areas)
	return areas
}

func (r *run) retrievedSummaries() string {
	parts := make([]string, 0, len(r.state.Retrieved))
	for _, e := range r.state.Retrieved {
		parts = append(parts, fmt.Sprintf("- (%s) %s | score=%v\n  snippet: %s",
			e.Doc.Area, e.Doc.Title, e.Hit.Score, e.Doc.ContentSnippet))
	}
	return head(strings.Join(parts, "\n\n"), summaryChars)
}
