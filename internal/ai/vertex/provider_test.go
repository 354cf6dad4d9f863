package vertex

import (
	"context"
	"errors"
	"testing"

	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
	res         *genai.GenerateContentResponse
	err         error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = cfg
	return f.res, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(text, genai.RoleModel)},
		},
	}
}

func TestComplete(t *testing.T) {
	g := &fakeGenerator{res: textResponse(`{"thread_status":"closed"}`)}
	p := newProvider(g, "gemini-2.0-flash")

	text, err := p.Complete(context.Background(), models.CompletionRequest{
		System: "rules", Prompt: "thread", MaxTokens: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"thread_status":"closed"}`, text)

	assert.Equal(t, "gemini-2.0-flash", g.gotModel)
	require.Len(t, g.gotContents, 1)
	assert.Equal(t, "thread", g.gotContents[0].Parts[0].Text)
	assert.Equal(t, "rules", g.gotConfig.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(300), g.gotConfig.MaxOutputTokens)
	require.NotNil(t, g.gotConfig.Temperature)
	assert.Equal(t, float32(0.1), *g.gotConfig.Temperature)
}

func TestComplete_Error(t *testing.T) {
	p := newProvider(&fakeGenerator{err: errors.New("permission denied")}, "gemini-2.0-flash")

	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "permission denied")
}

func TestComplete_EmptyText(t *testing.T) {
	p := newProvider(&fakeGenerator{res: &genai.GenerateContentResponse{}}, "gemini-2.0-flash")

	_, err := p.Complete(context.Background(), models.CompletionRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "empty text")
}

func TestNameAndModel(t *testing.T) {
	p := newProvider(&fakeGenerator{}, "gemini-2.0-flash")
	assert.Equal(t, "vertex", p.Name())
	assert.Equal(t, "gemini-2.0-flash", p.Model())
}
