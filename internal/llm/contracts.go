package llm

import (
	"context"
	"encoding/json"

	"github.com/joseph-ayodele/doc-intake/internal/dates"
)

// KeyDate is a labelled date; Date is always YYYY-MM-DD.
type KeyDate struct {
	Label string `json:"label"`
	Date  string `json:"date"`
}

// MonetaryValue is a labelled amount in an ISO 4217 currency.
type MonetaryValue struct {
	Label    string  `json:"label"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// StructuredResult is the normalized shape we want from the LLM for every
// document type. Any field may be empty.
type StructuredResult struct {
	DocumentTitle   string          `json:"document_title"`
	IssuingParty    string          `json:"issuing_party"`
	KeyDates        []KeyDate       `json:"key_dates"`
	MonetaryValues  []MonetaryValue `json:"monetary_values"`
	Notes           string          `json:"notes"`
	Confidence      float64         `json:"confidence"`
	BlockingIssues  []string        `json:"blocking_issues"`
	FollowUpActions []string        `json:"follow_up_actions"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Outcome         string          `json:"outcome,omitempty"`
	PropertyAddress string          `json:"property_address,omitempty"`
}

// DefaultResult is returned when no usable output could be obtained. The
// diagnostic becomes the only blocking issue.
func DefaultResult(diagnostic string) StructuredResult {
	r := StructuredResult{}
	r.fillEmpty()
	if diagnostic != "" {
		r.BlockingIssues = append(r.BlockingIssues, diagnostic)
	}
	return r
}

// fillEmpty makes list fields encode as [] rather than null.
func (r *StructuredResult) fillEmpty() {
	if r.KeyDates == nil {
		r.KeyDates = []KeyDate{}
	}
	if r.MonetaryValues == nil {
		r.MonetaryValues = []MonetaryValue{}
	}
	if r.BlockingIssues == nil {
		r.BlockingIssues = []string{}
	}
	if r.FollowUpActions == nil {
		r.FollowUpActions = []string{}
	}
}

// JSON encodes the result for the job's summary column.
func (r StructuredResult) JSON() (json.RawMessage, error) {
	r.fillEmpty()
	return json.Marshal(r)
}

// Hints is context the pipeline knows besides the text.
type Hints struct {
	Filename string
	Building string
	Unit     string
	// Dates found in the text by pattern matching, used to fill key_dates
	// when the model returns none.
	Dates []dates.Found
}

// Prompt is one provider-agnostic chat request.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	Schema      map[string]any
}

// Completion is the raw provider answer.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client is implemented by each provider package.
type Client interface {
	Complete(ctx context.Context, p Prompt) (Completion, error)
	Model() string
}

// Usage is what one extraction cost.
type Usage struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	LatencyMS        int64  `json:"latency_ms"`
}

// Extraction is the outcome of Adapter.ExtractStructured. Strategy names the
// recovery strategy that produced Result, or is empty for DefaultResult.
type Extraction struct {
	Result   StructuredResult
	Usage    Usage
	Strategy string
	ReqID    string
}

// Recovered reports whether Result came from the model rather than DefaultResult.
func (e Extraction) Recovered() bool { return e.Strategy != "" }
