package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/threadlens/internal/aggregate"
	"github.com/kiranshivaraju/threadlens/internal/api/response"
	"github.com/kiranshivaraju/threadlens/internal/threads"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/kiranshivaraju/threadlens/pkg/sentiment"
)

// ThreadReader defines the read paths the dashboard handlers depend on.
type ThreadReader interface {
	ListThreads(ctx context.Context, q threads.ThreadQuery) ([]*models.Thread, error)
	GetThread(ctx context.Context, threadID string) (*models.Thread, error)
	MonthlyAggregates(ctx context.Context, months int) ([]models.MonthlyAggregate, error)
	DefaultListLimit() int
	DefaultWindowMonths() int
}

// NewListThreadsHandler returns an http.HandlerFunc for GET /api/v1/threads.
func NewListThreadsHandler(svc ThreadReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var query threads.ThreadQuery

		if raw := q.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 || limit > threads.MaxListLimit {
				response.Error(w, http.StatusBadRequest, "INVALID_LIMIT",
					fmt.Sprintf("limit must be an integer between 1 and %d", threads.MaxListLimit), nil)
				return
			}
			query.Limit = limit
		}

		if raw := q.Get("status"); raw != "" {
			status := models.ThreadStatus(raw)
			if !status.Valid() {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"status must be open or closed", nil)
				return
			}
			query.Status = status
		}

		if raw := q.Get("sentiment"); raw != "" {
			s, ok := parseSentimentFilter(raw)
			if !ok {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"sentiment must be a known sentiment label", nil)
				return
			}
			query.Sentiment = &s
		}

		if raw := q.Get("owner"); raw != "" {
			owner := models.Owner(raw)
			if !owner.Valid() {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"owner must be org, customer or none", nil)
				return
			}
			query.Owner = owner
		}

		list, err := svc.ListThreads(r.Context(), query)
		if err != nil {
			if errors.Is(err, threads.ErrInvalidLimit) {
				response.Error(w, http.StatusBadRequest, "INVALID_LIMIT", err.Error(), nil)
				return
			}
			slog.Error("list threads failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list threads", nil)
			return
		}

		if list == nil {
			list = []*models.Thread{}
		}
		limit := query.Limit
		if limit == 0 {
			limit = svc.DefaultListLimit()
		}
		var sentimentLabel string
		if query.Sentiment != nil {
			sentimentLabel = query.Sentiment.String()
		}
		response.Collection(w, list, response.ListMeta{
			Limit:   limit,
			Count:   len(list),
			Filters: response.NewThreadFilters(string(query.Status), sentimentLabel, string(query.Owner)),
		})
	}
}

// parseSentimentFilter accepts either taxonomy and the literal "Unknown".
func parseSentimentFilter(raw string) (sentiment.Sentiment, bool) {
	if raw == sentiment.LabelUnknown {
		return sentiment.Unknown, true
	}
	s := sentiment.Normalize(raw)
	return s, s.Known()
}

// NewGetThreadHandler returns an http.HandlerFunc for GET /api/v1/threads/{threadID}.
func NewGetThreadHandler(svc ThreadReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := chi.URLParam(r, "threadID")

		t, err := svc.GetThread(r.Context(), threadID)
		if err != nil {
			if errors.Is(err, threads.ErrThreadNotFound) {
				response.Error(w, http.StatusNotFound, "THREAD_NOT_FOUND", "Thread not found", nil)
				return
			}
			slog.Error("get thread failed", "thread_id", threadID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load thread", nil)
			return
		}

		response.JSON(w, t)
	}
}

var invalidWindowMessage = fmt.Sprintf("months must be an integer between 1 and %d", threads.MaxAggregateMonths)

// NewMonthlyAggregatesHandler returns an http.HandlerFunc for
// GET /api/v1/threads/aggregates/monthly.
func NewMonthlyAggregatesHandler(svc ThreadReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		months := svc.DefaultWindowMonths()
		if raw := r.URL.Query().Get("months"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_WINDOW",
					invalidWindowMessage, nil)
				return
			}
			months = n
		}

		result, err := svc.MonthlyAggregates(r.Context(), months)
		if err != nil {
			switch {
			case errors.Is(err, aggregate.ErrInvalidWindow), errors.Is(err, threads.ErrWindowTooLarge):
				response.Error(w, http.StatusBadRequest, "INVALID_WINDOW",
					invalidWindowMessage, nil)
			default:
				slog.Error("monthly aggregates failed", "months", months, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to compute monthly aggregates", nil)
			}
			return
		}

		response.JSON(w, result)
	}
}
