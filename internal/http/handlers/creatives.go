package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/middleware"
)

const maxPayloadBytes = 1 << 20

type enqueueResponse struct {
	JobID  string           `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

type statusResponse struct {
	ID          string           `json:"id"`
	Status      domain.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	Result      *domain.Result   `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// EnqueueCreative accepts a generation payload and returns the job id.
func (a *App) EnqueueCreative(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	var payload domain.Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "payload exceeds 1MB")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid json: "+err.Error())
		return
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "payload must be a single json object")
		return
	}
	if strings.TrimSpace(payload.Locale) == "" {
		payload.Locale = middleware.LocaleFromContext(r.Context())
	}

	jobID, err := a.Jobs.Enqueue(r.Context(), ownerID, payload)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/creatives/"+jobID)
	a.json(w, http.StatusAccepted, enqueueResponse{JobID: jobID, Status: domain.JobStatusPending})
}

// CreativeStatus reports progress and, once terminal, the result or error.
func (a *App) CreativeStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	job, err := a.Jobs.GetStatusForOwner(r.Context(), ownerID, jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, statusResponse{
		ID:          job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Result:      job.Result,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt.UTC(),
		UpdatedAt:   job.UpdatedAt.UTC(),
	})
}
