package ai

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/threadlens/internal/ai/anthropic"
	"github.com/kiranshivaraju/threadlens/internal/ai/vertex"
	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "vertex":
		return vertex.NewProvider(ctx, cfg.Vertex)
	case "":
		return nil, ErrExplainDisabled
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of anthropic, vertex", cfg.Provider)
	}
}
