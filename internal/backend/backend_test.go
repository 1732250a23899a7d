package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/waste-analyzer/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg  config.ModelConfig
		name string
	}{
		{config.ModelConfig{Backend: "gemini", APIKey: "k"}, "gemini/gemini-2.5-flash"},
		{config.ModelConfig{Backend: "ollama", Name: "llava:7b"}, "ollama/llava:7b"},
		{config.ModelConfig{Backend: "OpenAI", Name: "gpt-4o-mini", APIKey: "sk"}, "openai/gpt-4o-mini"},
		{config.ModelConfig{Backend: "llamacpp"}, "openai/default"},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Backend, func(t *testing.T) {
			vc, err := New(t.Context(), tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.name, vc.Name())
		})
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New(t.Context(), config.ModelConfig{Backend: "bard"})
	assert.ErrorContains(t, err, "unknown backend")

	_, err = New(t.Context(), config.ModelConfig{Backend: "gemini"})
	assert.Error(t, err)

	_, err = New(t.Context(), config.ModelConfig{Backend: "ollama"})
	assert.Error(t, err)
}
