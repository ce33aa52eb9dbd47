package embedding

import (
	"fmt"
	"net/url"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mike-a-ellis/docubot/internal/config"
)

// Client wraps an openai-go client pointed at an OpenAI-compatible embeddings endpoint.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a client from the embedding configuration.
// The hosted OpenAI API needs a key; self-hosted endpoints may run without one.
func NewClient(cfg config.EmbeddingConfig, opts ...option.RequestOption) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: no model configured", ErrModelUnavailable)
	}
	if cfg.APIKey == "" && isHostedOpenAI(cfg.BaseURL) {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrModelUnavailable)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused"
	}
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(append(base, opts...)...)

	return &Client{client: &client, model: cfg.Model}, nil
}

// Model returns the embedding model name requested from the endpoint.
func (c *Client) Model() string { return c.model }

func isHostedOpenAI(baseURL string) bool {
	if baseURL == "" {
		return true
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return u.Hostname() == "api.openai.com"
}
