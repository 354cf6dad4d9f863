package models

import (
	"time"

	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

// ThreadStatus is the open/closed state of a support thread.
type ThreadStatus string

const (
	StatusOpen   ThreadStatus = "open"
	StatusClosed ThreadStatus = "closed"
)

func (s ThreadStatus) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

// Source identifies which classifier produced a signal.
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceLLM       Source = "llm"
)

func (s Source) Valid() bool {
	return s == SourceHeuristic || s == SourceLLM
}

// Owner is the party expected to act next on a thread.
type Owner string

const (
	OwnerOrg      Owner = "org"
	OwnerCustomer Owner = "customer"
	OwnerNone     Owner = "none"
)

func (o Owner) Valid() bool {
	return o == OwnerOrg || o == OwnerCustomer || o == OwnerNone
}

// Thread is the reconciled, authoritative view of one support conversation.
// StatusSource and StatusConfidence always describe the signal that won status reconciliation;
// Confidence, ModelName and PromptVersion describe the signal that won sentiment.
type Thread struct {
	ThreadID         string              `db:"thread_id"         json:"thread_id"`
	LastMessageTS    time.Time           `db:"last_message_ts"   json:"last_message_ts"`
	MessageCount     int                 `db:"message_count"     json:"message_count"`
	Status           ThreadStatus        `db:"thread_status"     json:"thread_status"`
	StatusSource     Source              `db:"status_source"     json:"status_source"`
	StatusReason     *string             `db:"status_reason"     json:"status_reason,omitempty"`
	StatusConfidence *float64            `db:"status_confidence" json:"status_confidence,omitempty"`
	NextActionOwner  *Owner              `db:"next_action_owner" json:"next_action_owner,omitempty"`
	Sentiment        sentiment.Sentiment `db:"sentiment"         json:"sentiment"`
	Confidence       float64             `db:"confidence"        json:"confidence"`
	ModelName        string              `db:"model_name"        json:"model_name"`
	PromptVersion    string              `db:"prompt_version"    json:"prompt_version"`
}

// ThreadActivity tracks message volume and recency for a thread.
// LastMessageTS never moves backwards.
type ThreadActivity struct {
	ThreadID      string    `db:"thread_id"       json:"thread_id"`
	LastMessageTS time.Time `db:"last_message_ts" json:"last_message_ts"`
	MessageCount  int       `db:"message_count"   json:"message_count"`
	UpdatedAt     time.Time `db:"updated_at"      json:"updated_at"`
}

// Message is one ingested interaction event on a thread.
type Message struct {
	MessageID string    `db:"message_id" json:"message_id"`
	ThreadID  string    `db:"thread_id"  json:"thread_id"`
	BodyText  string    `db:"body_text"  json:"body_text"`
	EventTS   time.Time `db:"event_ts"   json:"event_ts"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
