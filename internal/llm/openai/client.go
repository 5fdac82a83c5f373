package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doc-intake/internal/llm"
)

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements llm.Client using chat/completions in JSON mode.
func (c *Client) Complete(ctx context.Context, p llm.Prompt) (llm.Completion, error) {
	rid := uuid.New().String()

	messages := []map[string]any{
		{"role": "system", "content": p.System},
		{"role": "user", "content": p.User},
	}
	if p.Schema != nil {
		messages = append(messages, map[string]any{"role": "system", "content": "JSON Schema:\n" + llm.SchemaText(p.Schema)})
	}
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     p.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages":        messages,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body,
		map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}, rid, c.log)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("openai: %w", err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.openai.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return llm.Completion{}, fmt.Errorf("decode openai response: %w", err)
	}
	out := llm.Completion{
		Model:            cc.Model,
		PromptTokens:     cc.Usage.PromptTokens,
		CompletionTokens: cc.Usage.CompletionTokens,
	}
	if len(cc.Choices) == 0 {
		return out, fmt.Errorf("no choices in openai response")
	}
	if fr := cc.Choices[0].FinishReason; fr == "length" {
		c.log.Warn("llm.openai.truncated", "req_id", rid, "finish_reason", fr)
	}
	out.Content = strings.TrimSpace(cc.Choices[0].Message.Content)
	return out, nil
}
