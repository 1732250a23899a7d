// Package backend builds the vision client named in the configuration.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/waste-analyzer/internal/config"
	"github.com/menta2k/waste-analyzer/pkg/client"
	"github.com/menta2k/waste-analyzer/pkg/gemini"
	"github.com/menta2k/waste-analyzer/pkg/ollama"
	"github.com/menta2k/waste-analyzer/pkg/openai"
)

// Names lists the supported backends.
var Names = []string{"gemini", "ollama", "openai", "llamacpp"}

// New returns the vision client for cfg.
func New(ctx context.Context, cfg config.ModelConfig) (client.VisionClient, error) {
	// The detector enforces its own deadline; this only guards against hung connections.
	httpClient := &http.Client{Timeout: 5 * time.Minute}

	switch strings.ToLower(cfg.Backend) {
	case "gemini", "":
		return checked(gemini.NewClient(ctx, cfg.APIKey, cfg.Name, cfg.BaseURL))
	case "ollama":
		return checked(ollama.NewClient(cfg.BaseURL, cfg.Name, httpClient))
	case "openai":
		return checked(openai.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Name, httpClient))
	case "llamacpp":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openai.LlamaCppURL
		}
		name := cfg.Name
		if name == "" {
			// llama.cpp serves whatever model it was started with
			name = "default"
		}
		return checked(openai.NewClient(cfg.APIKey, baseURL, name, httpClient))
	default:
		return nil, fmt.Errorf("unknown backend %q (want one of %s)", cfg.Backend, strings.Join(Names, ", "))
	}
}

// checked keeps a typed nil client out of the interface on error.
func checked[C client.VisionClient](c C, err error) (client.VisionClient, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
