package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-intake/internal/dates"
)

type fakeClient struct {
	content string
	err     error
	block   bool
	panics  bool
	prompts []Prompt
}

func (f *fakeClient) Model() string { return "fake-model" }

func (f *fakeClient) Complete(ctx context.Context, p Prompt) (Completion, error) {
	f.prompts = append(f.prompts, p)
	if f.panics {
		panic("provider bug")
	}
	if f.block {
		<-ctx.Done()
		return Completion{}, ctx.Err()
	}
	return Completion{Content: f.content, PromptTokens: 100, CompletionTokens: 20}, f.err
}

func extract(t *testing.T, c *fakeClient, opts ...AdapterOption) Extraction {
	t.Helper()
	return NewAdapter(c, nil, opts...).ExtractStructured(context.Background(), "document text", "EICR", Hints{Filename: "eicr.pdf"})
}

func TestExtract_ValidJSON(t *testing.T) {
	ext := extract(t, &fakeClient{content: `{"document_title": "Electrical Installation Condition Report",
		"issuing_party": "Sparks Ltd", "outcome": "SATISFACTORY", "confidence": 0.93,
		"key_dates": [{"label": "Date of inspection", "date": "2023-07-15"}],
		"monetary_values": [], "blocking_issues": [], "follow_up_actions": ["Book next inspection"], "notes": ""}`})

	require.True(t, ext.Recovered())
	assert.Equal(t, StrategyNormalizeEscapes, ext.Strategy)
	assert.Equal(t, "Electrical Installation Condition Report", ext.Result.DocumentTitle)
	assert.Equal(t, []KeyDate{{Label: "Date of inspection", Date: "2023-07-15"}}, ext.Result.KeyDates)
	assert.InDelta(t, 0.93, ext.Result.Confidence, 1e-9)
	assert.Equal(t, "fake-model", ext.Usage.Model)
	assert.Equal(t, 100, ext.Usage.PromptTokens)
	assert.Equal(t, 20, ext.Usage.CompletionTokens)
	assert.NotEmpty(t, ext.ReqID)
}

func TestExtract_EscapedNewlines(t *testing.T) {
	ext := extract(t, &fakeClient{content: `{\n  \"document_title\": \"Gas Safety Record\",\n  \"confidence\": 0.9\n}`})
	require.True(t, ext.Recovered())
	assert.Equal(t, "Gas Safety Record", ext.Result.DocumentTitle)
	assert.InDelta(t, 0.9, ext.Result.Confidence, 1e-9)
}

func TestExtract_DoubledBackslashes(t *testing.T) {
	ext := extract(t, &fakeClient{content: `{\\"document_title\\": \\"Lease\\", \\"confidence\\": 0.7}`})
	require.True(t, ext.Recovered())
	assert.Equal(t, StrategyNormalizeEscapes, ext.Strategy)
	assert.Equal(t, "Lease", ext.Result.DocumentTitle)
	assert.InDelta(t, 0.7, ext.Result.Confidence, 1e-9)
}

func TestExtract_CodeFenceAndProse(t *testing.T) {
	ext := extract(t, &fakeClient{content: "Sure! Here is the JSON:\n```json\n{\"document_title\": \"Lease\"}\n```"})
	require.True(t, ext.Recovered())
	assert.Equal(t, "Lease", ext.Result.DocumentTitle)
}

func TestExtract_ControlCharacters(t *testing.T) {
	ext := extract(t, &fakeClient{content: "{\"document_title\": \"EICR\x07 Report\", \"notes\": \"line one\nline two\x00\"}"})
	require.True(t, ext.Recovered())
	assert.Equal(t, "EICR Report", ext.Result.DocumentTitle)
	assert.Equal(t, "line one\nline two", ext.Result.Notes)
}

func TestExtract_Base64(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte(`{"document_title":"Fire Risk Assessment","confidence":0.7}`))
	ext := extract(t, &fakeClient{content: payload})
	require.True(t, ext.Recovered())
	assert.Equal(t, StrategyBase64, ext.Strategy)
	assert.Equal(t, "Fire Risk Assessment", ext.Result.DocumentTitle)
	assert.InDelta(t, 0.7, ext.Result.Confidence, 1e-9)
}

func TestExtract_BrokenJSONKeepsConfidence(t *testing.T) {
	broken := `Here you go: {"document_title": "Gas Safety Record", "issuing_party": "Acme Gas",
		"confidence": 0.82, "key_dates": [{"label": "Inspection", "date": "15/07/2023"}, {"label": "Next due", "date": "14/07/20`
	ext := extract(t, &fakeClient{content: broken})
	require.True(t, ext.Recovered())
	assert.Equal(t, StrategyFieldRegex, ext.Strategy)
	assert.Equal(t, "Gas Safety Record", ext.Result.DocumentTitle)
	assert.Equal(t, "Acme Gas", ext.Result.IssuingParty)
	assert.InDelta(t, 0.82, ext.Result.Confidence, 1e-9)
	assert.Equal(t, []KeyDate{{Label: "Inspection", Date: "2023-07-15"}}, ext.Result.KeyDates)
}

func TestExtract_TrailingComma(t *testing.T) {
	ext := extract(t, &fakeClient{content: `{"document_title": "Test", "blocking_issues": ["a", "b",],}`})
	require.True(t, ext.Recovered())
	assert.Equal(t, "Test", ext.Result.DocumentTitle)
	assert.Equal(t, []string{"a", "b"}, ext.Result.BlockingIssues)
}

func TestExtract_Irrecoverable(t *testing.T) {
	ext := extract(t, &fakeClient{content: "I cannot help with that."})
	assert.False(t, ext.Recovered())
	assert.Empty(t, ext.Result.DocumentTitle)
	assert.Zero(t, ext.Result.Confidence)
	require.Len(t, ext.Result.BlockingIssues, 1)
	assert.Contains(t, ext.Result.BlockingIssues[0], "could not be parsed")
	assert.Equal(t, 100, ext.Usage.PromptTokens)
}

func TestExtract_MissingRequiredFieldIsDefault(t *testing.T) {
	ext := extract(t, &fakeClient{content: `{"notes": "no title here"}`})
	assert.False(t, ext.Recovered())
	assert.Zero(t, ext.Result.Confidence)
}

func TestExtract_ClientError(t *testing.T) {
	ext := extract(t, &fakeClient{err: errors.New("connection refused")})
	assert.False(t, ext.Recovered())
	require.Len(t, ext.Result.BlockingIssues, 1)
	assert.Contains(t, ext.Result.BlockingIssues[0], "connection refused")
}

func TestExtract_Timeout(t *testing.T) {
	ext := extract(t, &fakeClient{block: true}, WithTimeout(20*time.Millisecond))
	assert.False(t, ext.Recovered())
	assert.Contains(t, ext.Result.BlockingIssues[0], "timed out")
}

func TestExtract_PanicBecomesDefault(t *testing.T) {
	ext := extract(t, &fakeClient{panics: true})
	assert.False(t, ext.Recovered())
	assert.Contains(t, ext.Result.BlockingIssues[0], "provider bug")
}

func TestExtract_KeyDatesFromHints(t *testing.T) {
	c := &fakeClient{content: `{"document_title": "EICR", "key_dates": []}`}
	hints := Hints{Dates: dates.Find("Date of inspection: 15/07/2023")}
	ext := NewAdapter(c, nil).ExtractStructured(context.Background(), "Date of inspection: 15/07/2023", "EICR", hints)
	require.True(t, ext.Recovered())
	assert.Equal(t, []KeyDate{{Label: "Date of inspection", Date: "2023-07-15"}}, ext.Result.KeyDates)
}

func TestExtract_PromptCarriesTypeAndTemperature(t *testing.T) {
	c := &fakeClient{content: `{"document_title": "x"}`}
	long := strings.Repeat("a", 7000)
	NewAdapter(c, nil, WithTemperature(0.3), WithMaxInputChars(1000)).
		ExtractStructured(context.Background(), long, "Lease", Hints{Filename: "lease.pdf", Building: "Harbour House"})

	require.Len(t, c.prompts, 1)
	p := c.prompts[0]
	assert.InDelta(t, 0.3, p.Temperature, 1e-6)
	assert.Contains(t, p.System, "This is a lease.")
	assert.Contains(t, p.User, "Filename: lease.pdf")
	assert.Contains(t, p.User, "Building: Harbour House")
	assert.Contains(t, p.User, "…(truncated)")
	assert.Less(t, len(p.User), 1300)
	assert.NotNil(t, p.Schema)
}

func TestDefaultResultJSON(t *testing.T) {
	b, err := DefaultResult("no text").JSON()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, []any{}, m["key_dates"])
	assert.Equal(t, []any{"no text"}, m["blocking_issues"])
	assert.Equal(t, 0.0, m["confidence"])
	assert.NotContains(t, m, "outcome")
}
