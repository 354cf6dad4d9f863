package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/threadlens/internal/api/response"
	"github.com/kiranshivaraju/threadlens/internal/reconcile"
	"github.com/kiranshivaraju/threadlens/internal/store"
	"github.com/kiranshivaraju/threadlens/internal/threads"
	"github.com/kiranshivaraju/threadlens/pkg/models"
)

const maxIngestBody = 1 << 20

// ThreadWriter defines the ingest paths used by mail pipelines and classifiers.
type ThreadWriter interface {
	RecordMessage(ctx context.Context, msg *models.Message) (*threads.MessageResult, error)
	RecordSignal(ctx context.Context, sig *models.RawClassification) (*models.Thread, error)
}

// NewRecordMessageHandler returns an http.HandlerFunc for
// POST /api/v1/threads/{threadID}/messages.
func NewRecordMessageHandler(svc ThreadWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := chi.URLParam(r, "threadID")

		var req struct {
			MessageID string    `json:"message_id"`
			BodyText  string    `json:"body_text"`
			EventTS   time.Time `json:"event_ts"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody)).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		result, err := svc.RecordMessage(r.Context(), &models.Message{
			MessageID: req.MessageID,
			ThreadID:  threadID,
			BodyText:  req.BodyText,
			EventTS:   req.EventTS,
		})
		if err != nil {
			switch {
			case errors.Is(err, threads.ErrInvalidMessage):
				response.Error(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), nil)
			case errors.Is(err, store.ErrDuplicateKey):
				response.Error(w, http.StatusConflict, "DUPLICATE_MESSAGE",
					"Message has already been recorded", nil)
			default:
				slog.Error("record message failed", "thread_id", threadID, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record message", nil)
			}
			return
		}

		response.Created(w, result)
	}
}

// NewRecordSignalHandler returns an http.HandlerFunc for
// POST /api/v1/threads/{threadID}/signals.
func NewRecordSignalHandler(svc ThreadWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := chi.URLParam(r, "threadID")

		var sig models.RawClassification
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody)).Decode(&sig); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if sig.ThreadID != "" && sig.ThreadID != threadID {
			response.Error(w, http.StatusBadRequest, "INVALID_SIGNAL",
				"thread_id in body does not match the path", nil)
			return
		}
		sig.ThreadID = threadID

		t, err := svc.RecordSignal(r.Context(), &sig)
		if err != nil {
			switch {
			case errors.Is(err, threads.ErrInvalidSignal):
				response.Error(w, http.StatusBadRequest, "INVALID_SIGNAL", err.Error(), nil)
			case errors.Is(err, reconcile.ErrMissingClassification):
				response.Error(w, http.StatusUnprocessableEntity, "MISSING_CLASSIFICATION", err.Error(), nil)
			default:
				slog.Error("record signal failed", "thread_id", threadID, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record signal", nil)
			}
			return
		}

		response.Created(w, t)
	}
}
