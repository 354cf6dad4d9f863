package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/pkg/models"
)

// Provider implements models.AIProvider using the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// NewProvider creates a Provider. Extra request options are appended after the API key.
func NewProvider(cfg config.AnthropicConfig, opts ...option.RequestOption) *Provider {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Provider{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Model() string { return p.model }

// Complete returns the first text block of the reply.
func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in anthropic response")
}

var _ models.AIProvider = (*Provider)(nil)
