package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/waste-analyzer/pkg/client"
)

// DefaultURL is where a local Ollama server listens.
const DefaultURL = "http://localhost:11434"

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string, httpClient *http.Client) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// Keep scheme and host only, a path like /api/chat is added by the SDK.
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{client: api.NewClient(baseURL, httpClient), model: model}, nil
}

func (c *Client) Name() string {
	return "ollama/" + c.model
}

// Generate performs a non-streaming chat with the image attached.
func (c *Client) Generate(ctx context.Context, prompt string, img client.Image) (string, error) {
	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(img.Data)},
			},
		},
		Stream:  &streamFalse,
		Options: modelOptions(c.model),
		// No Format field, the prompt describes the JSON shape
	}

	var sb strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response from ollama")
	}
	return sb.String(), nil
}

// modelOptions tunes sampling for models that need it.
func modelOptions(model string) map[string]any {
	options := map[string]any{}
	m := strings.ToLower(model)
	if strings.Contains(m, "minicpm-v") || strings.Contains(m, "llava") {
		options["temperature"] = 0.2
		options["num_ctx"] = 4096
	}
	return options
}
