package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	m := map[string]any{
		"Title":   "  Section 20 Notice ",
		"issuer":  "Acme Property Management",
		"dates":   map[string]any{"Notice date": "3rd March 2024", "Consultation ends": "not a date"},
		"amounts": []any{map[string]any{"label": "Roof works", "amount": "£48,250.00"}, map[string]any{"label": "bad", "amount": "tbc"}},
		"confidence":        "85%",
		"blocking_issues":   "Tender pending",
		"follow_up_actions": []any{"Send observations", "", 3.0},
		"reference":         12345.0,
		"page_count":        2.0,
	}
	changes := Sanitize(m, nil)

	assert.Equal(t, "Section 20 Notice", m["document_title"])
	assert.Equal(t, "Acme Property Management", m["issuing_party"])
	assert.Equal(t, []any{map[string]any{"label": "Notice date", "date": "2024-03-03"}}, m["key_dates"])
	assert.Equal(t, []any{map[string]any{"label": "Roof works", "amount": 48250.0, "currency": "GBP"}}, m["monetary_values"])
	assert.InDelta(t, 0.85, m["confidence"], 1e-9)
	assert.Equal(t, []any{"Tender pending"}, m["blocking_issues"])
	assert.Equal(t, []any{"Send observations", "3"}, m["follow_up_actions"])
	assert.Equal(t, "12345", m["reference_number"])
	assert.NotContains(t, m, "page_count")
	assert.NotContains(t, m, "Title")
	assert.Contains(t, changes, "page_count(unknown)")
	assert.Contains(t, changes, "monetary_values[1](amount)")
}

func TestSanitize_KeepsExistingCanonicalValue(t *testing.T) {
	m := map[string]any{"document_title": "Real title", "title": "Other"}
	Sanitize(m, nil)
	assert.Equal(t, "Real title", m["document_title"])
	assert.NotContains(t, m, "title")
}

func TestSanitize_Confidence(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{0.5, 0.5},
		{1.7, 0.017},
		{85.0, 0.85},
		{-0.2, 0},
		{250.0, 1},
		{"0.4", 0.4},
	}
	for _, tc := range cases {
		got, ok := confidence(tc.in)
		require.True(t, ok)
		assert.InDelta(t, tc.want, got, 1e-9, "%v", tc.in)
	}
	_, ok := confidence("high")
	assert.False(t, ok)
}

func TestCurrencyCode(t *testing.T) {
	assert.Equal(t, "GBP", currencyCode("", ""))
	assert.Equal(t, "EUR", currencyCode("eur", ""))
	assert.Equal(t, "USD", currencyCode("$", ""))
	assert.Equal(t, "EUR", currencyCode("", "€"))
	assert.Equal(t, "GBP", currencyCode("pounds", ""))
}

func TestDecodeSanitizedControl(t *testing.T) {
	m, err := decodeSanitizedControl("{\"document_title\": \"Asbestos\x01 Survey\",\n\t\"notes\": \"\"\x1f,}")
	require.NoError(t, err)
	assert.Equal(t, "Asbestos Survey", m["document_title"])
}

func TestValidateResult(t *testing.T) {
	assert.NoError(t, ValidateResult([]byte(`{"document_title": "x", "key_dates": [{"label": "a", "date": "2024-01-31"}]}`)))
	assert.Error(t, ValidateResult([]byte(`{"document_title": "x", "key_dates": [{"label": "a", "date": "31/01/2024"}]}`)))
	assert.Error(t, ValidateResult([]byte(`{"notes": "x"}`)))
	assert.Error(t, ValidateResult([]byte(`{"document_title": "x", "confidence": 2}`)))
	assert.Error(t, ValidateResult([]byte(`{"document_title": "x", "extra": 1}`)))
}
