// Package openai implements the provider contracts against any
// OpenAI-compatible chat completion and embeddings API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"recursive-companion/internal/domain"
	"recursive-companion/internal/provider"
)

const defaultCallTimeout = 60 * time.Second

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL points the client at a custom API endpoint (self-hosted
// gateways, OpenRouter, etc).
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client (used by tests to inject a
// recording transport).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithCallTimeout bounds each outbound call. A call that exceeds the
// deadline fails; it is never silently skipped.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithEmbeddingModel overrides the embedding model.
func WithEmbeddingModel(model string) Option {
	return func(p *Provider) {
		p.embeddingModel = goopenai.EmbeddingModel(model)
	}
}

// Provider implements provider.Generator and provider.Embedder with one
// shared underlying client. It holds no per-call state and is safe for
// concurrent use across all companion instances.
type Provider struct {
	client         *goopenai.Client
	baseURL        string
	httpClient     *http.Client
	timeout        time.Duration
	defaultModel   string
	embeddingModel goopenai.EmbeddingModel
}

var (
	_ provider.Generator = (*Provider)(nil)
	_ provider.Embedder  = (*Provider)(nil)
)

// New creates a provider for the given API key and default chat model.
func New(apiKey, defaultModel string, opts ...Option) *Provider {
	p := &Provider{
		timeout:        defaultCallTimeout,
		defaultModel:   defaultModel,
		embeddingModel: goopenai.SmallEmbedding3,
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	if p.httpClient != nil {
		cfg.HTTPClient = p.httpClient
	}
	p.client = goopenai.NewClientWithConfig(cfg)
	return p
}

// Generate performs one chat completion call.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.User,
	})

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for one text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: p.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("create embeddings: empty data in response")
	}
	return resp.Data[0].Embedding, nil
}

func chatRole(r domain.Role) string {
	if r == domain.RoleAgent {
		return goopenai.ChatMessageRoleAssistant
	}
	return goopenai.ChatMessageRoleUser
}
