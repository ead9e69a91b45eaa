package pipeline

import (
	"fmt"
	"strings"

	"articlereview/internal/schema"
)

// ClassifierPrompt is the classification system prompt.
func ClassifierPrompt(areas []string, retrievedSummaries string) string {
	return fmt.Sprintf(`You are a scientific area classifier.

Choose exactly ONE label among: %s

Use:
- the input article text (provided separately)
- the retrieved reference summaries below (from my private vector store)

Return ONLY a JSON object:
{"area":"<one of the labels>","rationale":"<1-3 short sentences>"}.

Retrieved references:
%s
`, strings.Join(areas, ", "), retrievedSummaries)
}

// ExtractionPrompt is the extraction system prompt for keys.
func ExtractionPrompt(keys schema.ExtractionKeys) string {
	return fmt.Sprintf(`You are an information extractor.

Fill STRICTLY the JSON keys below (exact spelling, exact keys). Do not include any reasoning, explanations, markdown, or thinking process.
{
  %q: "",
  %q: ["", "", ""],
  %q: ""
}
`, keys.Problem, keys.Steps, keys.Conclusion)
}

// ReviewPrompt is the reviewer system prompt.
func ReviewPrompt(area string) string {
	return fmt.Sprintf(`You're a peer-reviewer who writes in Portuguese.

Context: the article was classified as **%[1]s**.

Write a short and objective review in Markdown with the rubric:
- Novelty/contribution
- Clarity and methodological quality
- Validity and threats (bias, data, assumptions, metrics, generalization)
- Reprodutibility (code, data, experimental details)
- Limitations and next steps
- If the article is not directly a Math, Medicine or Economics article, justify why label it as **%[1]s**.

Your review should be in Portuguese and follow the format below.

Formato:
%[2]s
%[3]s ...
%[4]s ...
%[5]s ...
`, area, schema.MarkerTitle, schema.MarkerPositives, schema.MarkerFlaws, schema.MarkerFinal)
}

// ReviewUserPrompt carries the extraction and an excerpt of the article.
func ReviewUserPrompt(extractionJSON, excerpt string) string {
	return "Review content:\n\n" +
		"=== EXTRACTION (JSON) ===\n" + extractionJSON + "\n\n" +
		"=== ARTICLE TEXT (excerpt) ===\n" + excerpt
}
