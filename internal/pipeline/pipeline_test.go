package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"articlereview/internal/mcp"
	"articlereview/internal/schema"
	"articlereview/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// FAKES
// =============================================================================

type fakeTools struct {
	hits      []types.SearchHit
	contents  map[string]types.ArticleContent
	searchErr error
	fetchErr  map[string]error

	queries []string
	fetched []string
}

func (f *fakeTools) SearchArticles(_ context.Context, query string) ([]types.SearchHit, error) {
	f.queries = append(f.queries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeTools) GetArticleContent(_ context.Context, id string) (types.ArticleContent, error) {
	f.fetched = append(f.fetched, id)
	if err := f.fetchErr[id]; err != nil {
		return types.ArticleContent{}, err
	}
	c, ok := f.contents[id]
	if !ok {
		return types.ArticleContent{}, fmt.Errorf("unknown article %s", id)
	}
	return c, nil
}

// scriptedModel answers by the role named in the system prompt.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	repair  string

	calls   map[string]int
	users   map[string]string
	repairs []string
}

func newScriptedModel(replies map[string]string) *scriptedModel {
	return &scriptedModel{replies: replies, errs: map[string]error{}, calls: map[string]int{}, users: map[string]string{}}
}

func role(system string) string {
	switch {
	case strings.HasPrefix(system, "You are a scientific area classifier"):
		return "classify"
	case strings.HasPrefix(system, "You are an information extractor"):
		return "extract"
	case strings.HasPrefix(system, "You're a peer-reviewer"):
		return "review"
	}
	return "unknown"
}

func (m *scriptedModel) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs = append(m.repairs, prompt)
	return m.repair, nil
}

func (m *scriptedModel) CompleteWithSystem(_ context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := role(system)
	m.calls[r]++
	m.users[r] = user
	if err := m.errs[r]; err != nil {
		return "", err
	}
	return m.replies[r], nil
}

type fakeNormalizer struct {
	text     string
	warnings []string
	err      error
	calls    int
}

func (n *fakeNormalizer) Normalize(context.Context, types.InputKind, string) (string, []string, error) {
	n.calls++
	return n.text, n.warnings, n.err
}

const goodReview = "## Resenha\n**Pontos positivos:** claro\n\n**Possíveis falhas:** poucos dados\n\n**Comentários finais:** ok"

func goodExtraction(keys schema.ExtractionKeys) string {
	data, _ := json.Marshal(map[string]any{
		keys.Problem:    "bounding primes",
		keys.Steps:      []string{"sieve", "estimate", "conclude"},
		keys.Conclusion: "the bound holds",
	})
	return string(data)
}

func corpusTools() *fakeTools {
	return &fakeTools{
		hits: []types.SearchHit{
			{ID: "doc_A", Title: "Primes", Area: "Mathematics", Score: 0.9},
			{ID: "doc_B", Title: "Trials", Area: "Medicine", Score: 0.7},
		},
		contents: map[string]types.ArticleContent{
			"doc_A": {ID: "doc_A", Title: "Primes", Area: "Mathematics", Content: strings.Repeat("p", 2000)},
			"doc_B": {ID: "doc_B", Title: "Trials", Area: "Medicine", Content: "randomized trial"},
		},
	}
}

func stageTrace(st *State) []string {
	var out []string
	for _, r := range st.Stages {
		out = append(out, r.Stage+":"+string(r.Status))
	}
	return out
}

// =============================================================================
// RUNS
// =============================================================================

func TestRun_HappyPath(t *testing.T) {
	keys := schema.DefaultExtractionKeys("artcle")
	tools := corpusTools()
	model := newScriptedModel(map[string]string{
		"classify": `{"area":"Mathematics","rationale":"number theory"}`,
		"extract":  goodExtraction(keys),
		"review":   "Here is my review.\n\n" + goodReview,
	})
	m := New(tools, model, &fakeNormalizer{}, Config{TopK: 5, ExtractionKeys: keys, Repair: true})

	st := m.Run(context.Background(), types.InputText, "  A new bound on prime gaps.  ")

	assert.NotEmpty(t, st.RunID)
	assert.Equal(t, "A new bound on prime gaps.", st.NormalizedText)
	assert.Equal(t, []string{"A new bound on prime gaps."}, tools.queries)
	assert.Equal(t, []string{"doc_A", "doc_B"}, tools.fetched)
	require.Len(t, st.Retrieved, 2)
	assert.Len(t, st.Retrieved[0].Doc.ContentSnippet, 1200)
	assert.Equal(t, "Mathematics", st.ChosenArea)
	assert.Equal(t, "number theory", st.Rationale)
	assert.Equal(t, "bounding primes", st.Extraction.Problem)
	assert.Equal(t, []string{"sieve", "estimate", "conclude"}, st.Extraction.Steps)
	assert.Equal(t, goodReview, st.ReviewMarkdown)
	assert.Empty(t, st.Warnings)
	assert.Empty(t, model.repairs)

	want := []string{"normalize:ok", "retrieve:ok", "classify:ok", "extract:ok", "review:ok"}
	if diff := cmp.Diff(want, stageTrace(st)); diff != "" {
		t.Errorf("stage trace mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	keys := schema.DefaultExtractionKeys("artcle")
	tools := corpusTools()
	model := newScriptedModel(map[string]string{"extract": "{}"})
	model.repair = "{}"
	m := New(tools, model, &fakeNormalizer{}, Config{ExtractionKeys: keys, Repair: true})

	st := m.Run(context.Background(), types.InputText, "")

	require.NotEmpty(t, st.Warnings)
	assert.Contains(t, st.Warnings[0], "cannot normalize")
	assert.Contains(t, st.Warnings, "Empty normalized text; cannot retrieve articles.")
	assert.Empty(t, tools.queries)
	assert.Empty(t, st.Retrieved)
	assert.Equal(t, schema.EmptyExtraction(keys), st.Extraction)
	assert.Equal(t, StatusFailed, st.StageStatus(StageNormalize))
	assert.Equal(t, StatusSkipped, st.StageStatus(StageRetrieve))

	// Without retrieved areas the classifier picks among the fixed labels.
	assert.Contains(t, st.Warnings, "Could not infer areas from retrieval; using placeholder labels.")
	assert.Equal(t, types.AreaEconomics, st.ChosenArea)
	assert.True(t, schema.HasMinSections(st.ReviewMarkdown))
}

func TestRun_LabelOutsideAllowedSet(t *testing.T) {
	model := newScriptedModel(map[string]string{
		"classify": `{"area":"Physics","rationale":"quantum"}`,
		"extract":  goodExtraction(schema.DefaultExtractionKeys("artcle")),
		"review":   goodReview,
	})
	st := New(corpusTools(), model, &fakeNormalizer{}, DefaultConfig()).
		Run(context.Background(), types.InputText, "some article")

	assert.Equal(t, "Mathematics", st.ChosenArea)
	assert.Equal(t, StatusDegraded, st.StageStatus(StageClassify))
}

func TestRun_ClassifierFailures(t *testing.T) {
	t.Run("unparsable", func(t *testing.T) {
		model := newScriptedModel(map[string]string{"classify": "Medicine, surely."})
		st := New(corpusTools(), model, &fakeNormalizer{}, DefaultConfig()).
			Run(context.Background(), types.InputText, "some article")
		assert.Equal(t, "Mathematics", st.ChosenArea)
		assert.True(t, hasPrefix(st.Warnings, "Classifier returned invalid JSON"))
	})
	t.Run("call error", func(t *testing.T) {
		model := newScriptedModel(nil)
		model.errs["classify"] = errors.New("rate limited")
		st := New(corpusTools(), model, &fakeNormalizer{}, DefaultConfig()).
			Run(context.Background(), types.InputText, "some article")
		assert.Equal(t, "Mathematics", st.ChosenArea)
		assert.Equal(t, StatusFailed, st.StageStatus(StageClassify))
		assert.Contains(t, st.Warnings, "Classifier call failed: rate limited")
	})
}

func TestRun_ExtraKeyIsRepairedOnce(t *testing.T) {
	keys := schema.DefaultExtractionKeys("artcle")
	withExtra := map[string]any{
		keys.Problem:    "p",
		keys.Steps:      []string{"a", "b", "c"},
		keys.Conclusion: "c",
		"confidence":    "high",
	}
	data, _ := json.Marshal(withExtra)

	model := newScriptedModel(map[string]string{
		"classify": `{"area":"Mathematics"}`,
		"extract":  string(data),
		"review":   goodReview,
	})
	model.repair = goodExtraction(keys)

	st := New(corpusTools(), model, &fakeNormalizer{}, Config{ExtractionKeys: keys, Repair: true}).
		Run(context.Background(), types.InputText, "some article")

	require.Len(t, model.repairs, 1)
	out, err := json.Marshal(st.Output())
	require.NoError(t, err)
	var decoded struct {
		Extraction map[string]any `json:"extraction"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Len(t, decoded.Extraction, 3)
	assert.NotContains(t, decoded.Extraction, "confidence")
	assert.Equal(t, "bounding primes", decoded.Extraction[keys.Problem])
	assert.Equal(t, StatusDegraded, st.StageStatus(StageExtract))
	assert.Equal(t, StatusOK, st.StageStatus(StageReview))
}

func TestRun_ExtractFailureSkipsReview(t *testing.T) {
	model := newScriptedModel(map[string]string{"classify": `{"area":"Medicine"}`, "review": goodReview})
	model.errs["extract"] = errors.New("model unavailable")

	st := New(corpusTools(), model, &fakeNormalizer{}, DefaultConfig()).
		Run(context.Background(), types.InputText, "some article")

	assert.Equal(t, StatusFailed, st.StageStatus(StageExtract))
	assert.Equal(t, StatusSkipped, st.StageStatus(StageReview))
	assert.Contains(t, st.Warnings, "No extraction data available for review.")
	assert.Empty(t, st.ReviewMarkdown)
	assert.Zero(t, model.calls["review"])
	assert.Equal(t, schema.EmptyExtraction(DefaultConfig().ExtractionKeys), st.Extraction)
}

func TestRun_ReviewScaffold(t *testing.T) {
	model := newScriptedModel(map[string]string{
		"classify": `{"area":"Medicine"}`,
		"extract":  goodExtraction(DefaultConfig().ExtractionKeys),
		"review":   "Um bom artigo.",
	})
	st := New(corpusTools(), model, &fakeNormalizer{}, DefaultConfig()).
		Run(context.Background(), types.InputText, "some article")

	assert.True(t, strings.HasPrefix(st.ReviewMarkdown, schema.MarkerTitle))
	assert.True(t, strings.HasSuffix(st.ReviewMarkdown, "Um bom artigo."))
	assert.Equal(t, StatusDegraded, st.StageStatus(StageReview))

	user := model.users["review"]
	assert.True(t, strings.HasPrefix(user, "Review content:\n\n=== EXTRACTION (JSON) ===\n{"))
	assert.Contains(t, user, "=== ARTICLE TEXT (excerpt) ===\nsome article")
}

func TestRun_InputKinds(t *testing.T) {
	model := newScriptedModel(map[string]string{"classify": `{"area":"Medicine"}`})

	t.Run("pdf goes through the normalizer", func(t *testing.T) {
		n := &fakeNormalizer{text: "  extracted text ", warnings: []string{"PDF appears scanned"}}
		st := New(corpusTools(), model, n, DefaultConfig()).Run(context.Background(), types.InputPDF, "paper.pdf")
		assert.Equal(t, 1, n.calls)
		assert.Equal(t, "extracted text", st.NormalizedText)
		assert.Equal(t, "PDF appears scanned", st.Warnings[0])
	})
	t.Run("ingest failure", func(t *testing.T) {
		n := &fakeNormalizer{err: errors.New("PDF file not found at paper.pdf")}
		tools := corpusTools()
		st := New(tools, model, n, DefaultConfig()).Run(context.Background(), types.InputPDF, "paper.pdf")
		assert.Empty(t, st.NormalizedText)
		assert.Contains(t, st.Warnings, "Failed to ingest pdf input (id=input): PDF file not found at paper.pdf")
		assert.Empty(t, tools.queries)
	})
	t.Run("empty ingestion", func(t *testing.T) {
		n := &fakeNormalizer{text: "   "}
		st := New(corpusTools(), model, n, DefaultConfig()).Run(context.Background(), types.InputURL, "https://example.org")
		assert.Contains(t, st.Warnings, "url ingestion produced empty text (id=input).")
		assert.Equal(t, StatusDegraded, st.StageStatus(StageNormalize))
	})
	t.Run("unknown kind is text", func(t *testing.T) {
		n := &fakeNormalizer{}
		st := New(corpusTools(), model, n, DefaultConfig()).Run(context.Background(), "docx", "raw words")
		assert.Zero(t, n.calls)
		assert.Equal(t, "raw words", st.NormalizedText)
		assert.Contains(t, st.Warnings, `Unsupported input kind "docx"; treating as text.`)
	})
}

func TestRun_RetrievalLimits(t *testing.T) {
	tools := corpusTools()
	model := newScriptedModel(map[string]string{"classify": `{"area":"Mathematics"}`})
	long := strings.Repeat("x", 1400) + " " + strings.Repeat("é", 400)

	st := New(tools, model, &fakeNormalizer{}, Config{TopK: 1}).Run(context.Background(), types.InputText, long)

	require.Len(t, tools.queries, 1)
	assert.Equal(t, 1500, len([]rune(tools.queries[0])))
	assert.Equal(t, []string{"doc_A"}, tools.fetched)
	assert.Len(t, st.RetrievalDebug.Hits, 1)
	assert.Equal(t, tools.queries[0], st.RetrievalDebug.Query)

	// Only the retrieved area is offered to the classifier.
	assert.Equal(t, "Mathematics", st.ChosenArea)
}

func TestRun_SearchFailure(t *testing.T) {
	tools := corpusTools()
	tools.searchErr = fmt.Errorf("%w: connection refused", mcp.ErrTransport)
	model := newScriptedModel(map[string]string{"classify": `{"area":"Medicine"}`})

	st := New(tools, model, &fakeNormalizer{}, DefaultConfig()).Run(context.Background(), types.InputText, "some article")

	assert.Equal(t, StatusFailed, st.StageStatus(StageRetrieve))
	assert.Empty(t, st.Retrieved)
	assert.True(t, hasPrefix(st.Warnings, "Failed search_articles"))
	assert.Equal(t, "Medicine", st.ChosenArea)
	assert.Len(t, st.Stages, 5)
}

func TestRun_OutputJSON(t *testing.T) {
	keys := schema.DefaultExtractionKeys("article")
	model := newScriptedModel(map[string]string{
		"classify": `{"area":"Mathematics"}`,
		"extract":  goodExtraction(keys),
		"review":   goodReview,
	})
	st := New(corpusTools(), model, &fakeNormalizer{}, Config{ExtractionKeys: keys}).
		Run(context.Background(), types.InputText, "some article")
	st.Warn("note")

	data, err := json.Marshal(st.Verbose())
	require.NoError(t, err)
	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &got))
	assert.ElementsMatch(t, []string{"area", "extraction", "review_markdown", "warnings"}, keysOf(got))
	assert.True(t, strings.HasPrefix(string(got["extraction"]), `{"what problem does the article propose to solve?":`))
	assert.JSONEq(t, `["note"]`, string(got["warnings"]))
}

// =============================================================================
// TOOL TIMEOUT THROUGH THE BRIDGE
// =============================================================================

// stallingTransport serves canned tool results and never answers
// get_article_content for the stalled id.
type stallingTransport struct {
	stalled   string
	connected bool
}

func (s *stallingTransport) Connect(context.Context) error { s.connected = true; return nil }
func (s *stallingTransport) Disconnect() error             { s.connected = false; return nil }
func (s *stallingTransport) Ping(context.Context) error    { return nil }
func (s *stallingTransport) IsConnected() bool             { return s.connected }

func (s *stallingTransport) Initialize(context.Context) (*mcp.ServerInfo, error) {
	return &mcp.ServerInfo{Name: "stalling", Version: "0.0.1"}, nil
}

func (s *stallingTransport) ListTools(context.Context) ([]mcp.ToolSchema, error) {
	return nil, nil
}

func (s *stallingTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	var payload any
	switch name {
	case mcp.ToolSearchArticles:
		payload = []types.SearchHit{
			{ID: "doc_A", Title: "A", Area: "Mathematics", Score: 0.9},
			{ID: "doc_slow", Title: "Slow", Area: "Economics", Score: 0.8},
			{ID: "doc_C", Title: "C", Area: "Medicine", Score: 0.7},
		}
	case mcp.ToolGetArticleContent:
		id, _ := args["id"].(string)
		if id == s.stalled {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		payload = types.ArticleContent{ID: id, Title: id, Area: "Mathematics", Content: "content of " + id}
	default:
		return nil, fmt.Errorf("unknown tool %s", name)
	}
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(text)}},
	})
}

func TestRun_ToolTimeoutNamesHit(t *testing.T) {
	bridge := mcp.NewBridge(func() (mcp.Transport, error) {
		return &stallingTransport{stalled: "doc_slow"}, nil
	}, mcp.BridgeOptions{})
	defer bridge.Close()

	tools := mcp.NewArticleTools(bridge, 50*time.Millisecond)
	model := newScriptedModel(map[string]string{"classify": `{"area":"Mathematics"}`})
	st := New(tools, model, &fakeNormalizer{}, DefaultConfig()).Run(context.Background(), types.InputText, "some article")

	require.True(t, hasPrefix(st.Warnings, "Failed get_article_content for doc_slow:"))
	for _, w := range st.Warnings {
		if strings.HasPrefix(w, "Failed get_article_content for doc_slow:") {
			assert.Contains(t, w, "timeout")
		}
	}

	var enriched []string
	for _, e := range st.Retrieved {
		enriched = append(enriched, e.Doc.ID)
	}
	assert.Equal(t, []string{"doc_A", "doc_C"}, enriched)
	assert.Equal(t, StatusDegraded, st.StageStatus(StageRetrieve))
}

// =============================================================================
// HELPERS
// =============================================================================

func TestStageOrder(t *testing.T) {
	var got []string
	for s := StageNormalize; s != StageDone; s = s.Next() {
		got = append(got, s.String())
	}
	assert.Equal(t, []string{"normalize", "retrieve", "classify", "extract", "review"}, got)
	assert.Equal(t, StageDone, StageDone.Next())
}

func TestHead(t *testing.T) {
	assert.Equal(t, "", head("abc", 0))
	assert.Equal(t, "ab", head("abc", 2))
	assert.Equal(t, "abc", head("abc", 10))
	assert.Equal(t, "çã", head("çãõ", 2))
}

func TestPrompts(t *testing.T) {
	keys := schema.DefaultExtractionKeys("artcle")
	p := ExtractionPrompt(keys)
	assert.Contains(t, p, `"what problem does the artcle propose to solve?": ""`)
	assert.Contains(t, p, `"step by step on how to solve it": ["", "", ""]`)

	c := ClassifierPrompt([]string{"Mathematics", "Medicine"}, "- (Medicine) T | score=0.5")
	assert.Contains(t, c, "Choose exactly ONE label among: Mathematics, Medicine")

	r := ReviewPrompt("Economics")
	assert.Contains(t, r, "classified as **Economics**")
	assert.Contains(t, r, schema.MarkerFlaws)
}

func hasPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func keysOf(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
