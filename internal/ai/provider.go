// Package ai provides a unified interface to multiple AI inference providers.
package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Message represents a single message in a conversation with an AI model.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// InferOptions configures a single inference call.
type InferOptions struct {
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
	// Temperature is sent only when set, so zero reaches the provider.
	Temperature *float64 `json:"temperature,omitempty"`
	// JSON asks the provider for a single JSON object where it supports a
	// structured output mode.
	JSON bool `json:"json,omitempty"`
}

// Float returns a pointer to v for optional option fields.
func Float(v float64) *float64 { return &v }

// InferResult holds the response from an inference call.
type InferResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Provider defines the interface that all AI backends must implement.
type Provider interface {
	// Infer sends a prompt and returns the complete response.
	Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error)

	// Name returns the provider identifier.
	Name() string
}

// Options selects and configures a provider. Empty fields fall back to the
// provider's environment variable or default.
type Options struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the API root for OpenAI-compatible providers, or the
	// host for Ollama.
	BaseURL string
	Timeout time.Duration
}

// DefaultProvider is used when no provider is configured.
const DefaultProvider = "groq"

// Providers lists the supported provider names.
var Providers = []string{"groq", "openai", "anthropic", "ollama"}

// NewProvider creates a provider instance based on the provider name.
func NewProvider(opts Options) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Provider))
	if name == "" {
		name = DefaultProvider
	}
	key := opts.APIKey
	switch name {
	case "groq":
		if key == "" {
			key = os.Getenv("GROQ_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable is not set — get your API key at https://console.groq.com/keys")
		}
		p := NewGroqProvider(key, opts.Model)
		return p.configure(opts), nil
	case "openai":
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		p := NewOpenAIProvider(key, opts.Model)
		return p.configure(opts), nil
	case "anthropic":
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set — get your API key at https://console.anthropic.com/settings/keys")
		}
		p := NewAnthropicProvider(key, opts.Model)
		if opts.Timeout > 0 {
			p.client.Timeout = opts.Timeout
		}
		return p, nil
	case "ollama":
		host := opts.BaseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		p := NewOllamaProvider(host, opts.Model)
		if opts.Timeout > 0 {
			p.client.Timeout = opts.Timeout
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q — supported providers: %s", opts.Provider, strings.Join(Providers, ", "))
	}
}
