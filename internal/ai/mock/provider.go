package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/threadlens/internal/ai"
	"github.com/kiranshivaraju/threadlens/pkg/models"
)

// DefaultVerdict is the reply NewMockProvider returns.
const DefaultVerdict = `{"thread_status":"open","next_action_owner":"org","status_reason":"Customer is waiting on a reply.","sentiment":"Moderately Concerned","confidence":0.85}`

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	Model_       string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (string, error)

	calls atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Model() string { return m.Model_ }

// Calls returns how many times Complete has been invoked.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	m.calls.Add(1)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// NewMockProvider returns a MockProvider that always answers with DefaultVerdict.
func NewMockProvider() *MockProvider {
	return NewReplyProvider(DefaultVerdict)
}

// NewReplyProvider returns a MockProvider that always answers with reply.
func NewReplyProvider(reply string) *MockProvider {
	return &MockProvider{
		Name_:  "mock",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			return reply, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
