package models

import "time"

// RawClassification is one classifier's verdict on a thread. At most one is
// kept per (thread, source); a newer verdict from the same source replaces it.
// SentimentLabel is stored as received and may belong to either taxonomy.
type RawClassification struct {
	ThreadID             string       `db:"thread_id"               json:"thread_id"`
	Source               Source       `db:"source"                  json:"source"`
	SentimentLabel       string       `db:"sentiment_label"         json:"sentiment_label"`
	Confidence           float64      `db:"confidence"              json:"confidence"`
	StatusGuess          ThreadStatus `db:"status_guess"            json:"status_guess"`
	Reason               *string      `db:"reason"                  json:"reason,omitempty"`
	NextActionOwnerGuess *Owner       `db:"next_action_owner_guess" json:"next_action_owner_guess,omitempty"`
	ModelName            string       `db:"model_name"              json:"model_name,omitempty"`
	PromptVersion        string       `db:"prompt_version"          json:"prompt_version,omitempty"`
	CreatedAt            time.Time    `db:"created_at"              json:"created_at"`
}

// ExplainCandidate is a thread awaiting an LLM explanation at the current prompt version.
type ExplainCandidate struct {
	ThreadID        string
	HeuristicStatus *ThreadStatus
	LastMessage     string
	PreviousMessage *string
}
