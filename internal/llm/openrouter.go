package llm

import (
	"cmp"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterAppTitle       = "vidtutor"
)

// OpenRouterProvider reaches any vendor's model through one OpenRouter key.
// The wire format is OpenAI's, so it is an OpenAIProvider with a different
// endpoint and attribution headers.
type OpenRouterProvider struct {
	*OpenAIProvider
}

// NewOpenRouterProvider creates a provider targeting the OpenRouter API.
// Model ids such as "google/gemini-2.0-flash-exp" are sent unmapped.
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter API key is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cmp.Or(cfg.BaseURL, defaultOpenRouterBaseURL)
	oc.HTTPClient = &http.Client{Transport: titledTransport{base: http.DefaultTransport}}

	return &OpenRouterProvider{OpenAIProvider: &OpenAIProvider{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}}, nil
}

// titledTransport tags requests so OpenRouter usage is attributed to us.
type titledTransport struct {
	base http.RoundTripper
}

func (t titledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("X-Title", openRouterAppTitle)
	return t.base.RoundTrip(r)
}
