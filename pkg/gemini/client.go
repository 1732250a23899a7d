package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/menta2k/waste-analyzer/pkg/client"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// Client wraps the Gemini API client
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client for the Gemini API backend. baseURL is
// only set when talking to a proxy.
func NewClient(ctx context.Context, apiKey, model, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

func (c *Client) Name() string {
	return "gemini/" + c.model
}

// Generate sends the instruction text followed by the inline image.
func (c *Client) Generate(ctx context.Context, prompt string, img client.Image) (string, error) {
	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	log.Debug().
		Str("model", c.model).
		Int("prompt_length", len(prompt)).
		Int("image_bytes", len(img.Data)).
		Msg("Starting Gemini API call")

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("received empty response from Gemini API")
	}

	text := resp.Text()
	log.Debug().
		Int("response_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Gemini API response received")

	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}
	return text, nil
}
