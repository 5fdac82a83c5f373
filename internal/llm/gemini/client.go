// Package gemini implements llm.Client on Google Gemini.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/doc-intake/internal/llm"
)

type Client struct {
	client *genai.Client
	model  string
	log    *slog.Logger
}

// NewClient creates a Gemini client. Extra options follow the API key.
func NewClient(ctx context.Context, apiKey, model string, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: client, model: model, log: logger}, nil
}

func (c *Client) Model() string { return c.model }

// Complete implements llm.Client with a JSON response MIME type.
func (c *Client) Complete(ctx context.Context, p llm.Prompt) (llm.Completion, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(p.Temperature)
	model.ResponseMIMEType = "application/json"
	system := p.System
	if p.Schema != nil {
		system += "\n\nJSON Schema:\n" + llm.SchemaText(p.Schema)
	}
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return llm.Completion{}, fmt.Errorf("failed to generate content: %w", err)
	}
	return completionFrom(c.model, resp)
}

func completionFrom(model string, resp *genai.GenerateContentResponse) (llm.Completion, error) {
	out := llm.Completion{Model: model}
	if resp == nil {
		return out, fmt.Errorf("empty response")
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
	}
	text, err := extractTextFromResponse(resp)
	if err != nil {
		return out, err
	}
	out.Content = cleanJSONBlock(text)
	return out, nil
}

// extractTextFromResponse joins the text parts of the first candidate.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
