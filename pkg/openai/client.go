// Package openai talks to OpenAI or any OpenAI-compatible chat completion
// server, such as llama.cpp's /v1 endpoint.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/menta2k/waste-analyzer/pkg/client"
)

const maxTokens = 2048

// LlamaCppURL is the default base URL of a local llama.cpp server.
const LlamaCppURL = "http://localhost:8080/v1"

type Client struct {
	*openai.Client
	Model string
}

// NewClient creates a client. An empty baseURL targets api.openai.com.
func NewClient(apiKey, baseURL, model string, httpClient *http.Client) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}, nil
}

func (c *Client) Name() string {
	return "openai/" + c.Model
}

// Generate sends one user message holding the text and the image data URL.
func (c *Client) Generate(ctx context.Context, prompt string, img client.Image) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    img.DataURL(),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}
	// Reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(c.Model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", fmt.Errorf("empty response from %s", c.Model)
	}
	return text, nil
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
