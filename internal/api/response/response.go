package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	Data any `json:"data"`
}

type collectionEnvelope struct {
	Data any      `json:"data"`
	Meta ListMeta `json:"meta"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ListMeta describes a bounded, unpaginated list: the limit applied, how
// many items came back and the filters that narrowed it.
type ListMeta struct {
	Limit   int            `json:"limit"`
	Count   int            `json:"count"`
	Filters *ThreadFilters `json:"filters,omitempty"`
}

// ThreadFilters echoes the thread list filters a request applied. Sentiment
// is the canonical label, so a legacy alias comes back normalized.
type ThreadFilters struct {
	Status    string `json:"status,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	Owner     string `json:"owner,omitempty"`
}

// NewThreadFilters returns nil when no filter was applied.
func NewThreadFilters(status, sentiment, owner string) *ThreadFilters {
	if status == "" && sentiment == "" && owner == "" {
		return nil
	}
	return &ThreadFilters{Status: status, Sentiment: sentiment, Owner: owner}
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, envelope{Data: data})
}

func Collection(w http.ResponseWriter, data any, meta ListMeta) {
	writeJSON(w, http.StatusOK, collectionEnvelope{Data: data, Meta: meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
