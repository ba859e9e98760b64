package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

var (
	// ErrEmptyResponse is returned when a provider answers without any text.
	// Callers treat it like any other transient failure.
	ErrEmptyResponse = errors.New("empty response")
	ErrMissingAPIKey = errors.New("missing api key")
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL     string
	temperature *float64
	maxTokens   int
	jsonOutput  bool
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithTemperature pins sampling temperature; unset uses the provider default.
func WithTemperature(t float64) Option {
	return func(o *clientOptions) {
		o.temperature = &t
	}
}

func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		o.maxTokens = n
	}
}

// WithJSONOutput asks providers that support it to return bare JSON.
// Anthropic has no such switch and relies on the prompt.
func WithJSONOutput() Option {
	return func(o *clientOptions) {
		o.jsonOutput = true
	}
}

// ParseModel splits "provider/model", e.g. "gemini/gemini-2.0-flash".
func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(apiKey, model, o)
	case ProviderAnthropic:
		return newAnthropicClient(apiKey, model, o)
	default:
		return newGeminiClient(apiKey, model, o)
	}
}

// Keys maps a provider name to its API key.
type Keys map[string]string

// Factory returns a constructor for clients of any provider in k, each
// built with opts. A fresh client is built per call so a rotated key in k
// takes effect on the next request.
func (k Keys) Factory(opts ...Option) func(provider, model string) (Client, error) {
	return func(provider, model string) (Client, error) {
		return NewClient(provider, k[provider], model, opts...)
	}
}
