package vertex

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"google.golang.org/genai"
)

// generator is the slice of *genai.Models the provider calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements models.AIProvider using Gemini on Vertex AI.
type Provider struct {
	models      generator
	model       string
	temperature float32
}

// NewProvider creates a Vertex AI client using application default credentials.
func NewProvider(ctx context.Context, cfg config.VertexConfig) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vertex ai client: %w", err)
	}
	return newProvider(client.Models, cfg.Model), nil
}

func newProvider(g generator, model string) *Provider {
	return &Provider{models: g, model: model, temperature: 0.1}
}

func (p *Provider) Name() string { return "vertex" }

func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	temp := p.temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       &temp,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	res, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("vertex generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("vertex returned empty text")
	}
	return text, nil
}

var _ models.AIProvider = (*Provider)(nil)
