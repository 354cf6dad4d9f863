// Package prompt builds the thread-state explain prompt and parses the model's
// JSON verdict.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

const (
	maxReasonBytes  = 500
	maxMessageBytes = 4000
	maxOutputTokens = 512
)

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrNoJSON        = errors.New("no JSON object in model response")
	ErrInvalidField  = errors.New("invalid verdict field")
)

const system = `You are analyzing a customer support email thread to determine its status, who acts next, and how the customer feels.

OUTPUT FORMAT (respond with ONLY this JSON, no preamble):
{
  "thread_status": "open|closed",
  "next_action_owner": "org|customer|none",
  "status_reason": "Brief explanation in 1-2 sentences",
  "sentiment": "Happy|Bit Irritated|Moderately Concerned|Anger|Frustrated",
  "confidence": 0.0-1.0
}

DECISION RULES:
1. thread_status:
   - "open" when a reply is awaited, the issue is unresolved, or an action is pending
   - "closed" when the issue is resolved, nothing further is needed, or closure is explicit

2. next_action_owner:
   - "org" when the customer is waiting on the organization
   - "customer" when the organization is waiting on the customer
   - "none" when no action is needed or the thread is closed

3. Priority indicators:
   - A question means open, with the action on whoever must answer
   - "Thanks", "resolved", "all set" usually mean closed
   - A request for information means open, with the action on the recipient
   - A confirmation after a fix means closed
   - A promise to follow up ("I'll check and get back") means open, with the action on the promiser

4. sentiment (the customer's feeling in the latest exchange):
   - "Happy": satisfied, appreciative or clearly positive
   - "Bit Irritated": mild annoyance or impatience
   - "Moderately Concerned": worried or uneasy but measured
   - "Anger": openly hostile or accusatory
   - "Frustrated": repeated failures, exhaustion, or losing patience with the process

5. confidence:
   - 1.0: explicit closure or a clear question
   - 0.7-0.9: strong indicators present
   - 0.4-0.6: ambiguous but reasonable inference
   - below 0.4: very unclear; prefer keeping the thread open`

// Input is the slice of a thread the model sees.
type Input struct {
	HeuristicStatus string
	PreviousMessage string
	LastMessage     string
}

// Verdict is a validated model answer.
type Verdict struct {
	Status     models.ThreadStatus
	Owner      models.Owner
	Reason     string
	Sentiment  sentiment.Sentiment
	Confidence float64
}

// Build renders the completion request for one thread.
func Build(in Input) models.CompletionRequest {
	heuristic := in.HeuristicStatus
	if heuristic == "" {
		heuristic = "unknown"
	}
	prev := strings.TrimSpace(in.PreviousMessage)
	if prev == "" {
		prev = "N/A"
	}

	var b strings.Builder
	b.WriteString("INPUTS:\n")
	fmt.Fprintf(&b, "Heuristic status: %s\n", heuristic)
	fmt.Fprintf(&b, "Previous message: %s\n", truncate(prev, maxMessageBytes))
	fmt.Fprintf(&b, "Last message: %s\n\n", truncate(strings.TrimSpace(in.LastMessage), maxMessageBytes))
	b.WriteString("Respond with ONLY the JSON object, no markdown backticks, no explanation.")

	return models.CompletionRequest{
		System:    system,
		Prompt:    b.String(),
		MaxTokens: maxOutputTokens,
	}
}

type rawVerdict struct {
	ThreadStatus    string `json:"thread_status"`
	NextActionOwner string `json:"next_action_owner"`
	StatusReason    string `json:"status_reason"`
	Sentiment       any    `json:"sentiment"`
	Confidence      any    `json:"confidence"`
}

// Parse extracts and validates the verdict from raw model text.
func Parse(text string) (Verdict, error) {
	obj, err := extractJSON(text)
	if err != nil {
		return Verdict{}, err
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}

	v := Verdict{
		Status: models.ThreadStatus(strings.ToLower(strings.TrimSpace(raw.ThreadStatus))),
		Owner:  models.Owner(strings.ToLower(strings.TrimSpace(raw.NextActionOwner))),
		Reason: truncateReason(strings.TrimSpace(raw.StatusReason)),
	}
	if !v.Status.Valid() {
		return Verdict{}, fmt.Errorf("%w: thread_status %q must be open or closed", ErrInvalidField, raw.ThreadStatus)
	}
	if !v.Owner.Valid() {
		return Verdict{}, fmt.Errorf("%w: next_action_owner %q must be org, customer or none", ErrInvalidField, raw.NextActionOwner)
	}

	v.Confidence, err = parseConfidence(raw.Confidence)
	if err != nil {
		return Verdict{}, err
	}
	v.Sentiment, err = parseSentiment(raw.Sentiment)
	if err != nil {
		return Verdict{}, err
	}

	return v, nil
}

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// extractJSON returns the JSON object embedded in text, preferring a fenced block.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	if m := fenced.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

func parseConfidence(v any) (float64, error) {
	var c float64
	switch x := v.(type) {
	case float64:
		c = x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: confidence %q is not a number", ErrInvalidField, x)
		}
		c = f
	case nil:
		return 0, fmt.Errorf("%w: confidence is missing", ErrInvalidField)
	default:
		return 0, fmt.Errorf("%w: confidence has type %T", ErrInvalidField, v)
	}
	if math.IsNaN(c) || c < 0 || c > 1 {
		return 0, fmt.Errorf("%w: confidence %v must be between 0 and 1", ErrInvalidField, c)
	}
	return c, nil
}

// parseSentiment accepts a label from either taxonomy or a 1..5 score.
func parseSentiment(v any) (sentiment.Sentiment, error) {
	var s sentiment.Sentiment
	switch x := v.(type) {
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			s = sentiment.FromScore(n)
		} else {
			s = labelFold(strings.TrimSpace(x))
		}
	case float64:
		if x == math.Trunc(x) {
			s = sentiment.FromScore(int(x))
		}
	case nil:
		return sentiment.Unknown, fmt.Errorf("%w: sentiment is missing", ErrInvalidField)
	}
	if !s.Known() {
		return sentiment.Unknown, fmt.Errorf("%w: sentiment %v is not a recognized label or 1-5 score", ErrInvalidField, v)
	}
	return s, nil
}

// labelFold matches a five-class label ignoring case, then falls back to Normalize.
func labelFold(label string) sentiment.Sentiment {
	for _, s := range sentiment.Canonical() {
		if strings.EqualFold(s.String(), label) {
			return s
		}
	}
	return sentiment.Normalize(label)
}

// truncateReason caps the reason at the last full sentence inside the byte limit.
func truncateReason(s string) string {
	if len(s) <= maxReasonBytes {
		return s
	}
	cut := truncate(s, maxReasonBytes)
	if i := strings.LastIndex(cut, "."); i >= 0 {
		cut = cut[:i]
	}
	return cut + "."
}

// truncate shortens s to maxBytes without splitting UTF-8 runes.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
