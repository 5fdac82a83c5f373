package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doc-intake/internal/llm"
)

func TestComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{"model":"gpt-4o-mini-2024-07-18",
			"choices":[{"message":{"content":" {\"document_title\":\"EPC\"} "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":321,"completion_tokens":45}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"}, nil)
	out, err := c.Complete(context.Background(), llm.Prompt{
		System: "sys", User: "user", Temperature: 0.1, Schema: llm.BuildResultJSONSchema(),
	})
	require.NoError(t, err)

	assert.Equal(t, `{"document_title":"EPC"}`, out.Content)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", out.Model)
	assert.Equal(t, 321, out.PromptTokens)
	assert.Equal(t, 45, out.CompletionTokens)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["content"])
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil).Complete(context.Background(), llm.Prompt{})
	var he *llm.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusTooManyRequests, he.Status)
	assert.Contains(t, he.Body, "rate limited")
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[],"usage":{"prompt_tokens":10}}`)
	}))
	defer srv.Close()

	out, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil).Complete(context.Background(), llm.Prompt{})
	assert.ErrorContains(t, err, "no choices")
	assert.Equal(t, 10, out.PromptTokens)
}

func TestAdapterOverOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"{\"document_title\":\"Test\",}"}}]}`)
	}))
	defer srv.Close()

	a := llm.NewAdapter(NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil), nil)
	ext := a.ExtractStructured(context.Background(), "text", "", llm.Hints{})
	assert.True(t, ext.Recovered())
	assert.Equal(t, "Test", ext.Result.DocumentTitle)
}
