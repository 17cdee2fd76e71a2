package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/storage"
)

// JobService is the orchestrator surface the HTTP layer needs.
type JobService interface {
	Enqueue(ctx context.Context, ownerID string, payload domain.Payload) (string, error)
	GetStatusForOwner(ctx context.Context, ownerID, jobID string) (*domain.Job, error)
}

// TemplateLister exposes the read-only template catalog.
type TemplateLister interface {
	List() []domain.Template
}

// App holds the dependencies shared by every handler.
type App struct {
	Jobs      JobService
	Templates TemplateLister
	// Objects reads stored outputs back for bundle downloads. Optional.
	Objects storage.Reader
	Logger  zerolog.Logger
	// Ready reports dependency health for /v1/healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

func NewApp(jobs JobService, templates TemplateLister, logger zerolog.Logger) *App {
	return &App{Jobs: jobs, Templates: templates, Logger: logger}
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
	case errors.Is(err, domain.ErrInvalidPayload):
		body := errorBody{Code: "invalid_payload", Message: "payload failed validation"}
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			body.Fields = flattenErrors("", verrs)
		}
		a.json(w, http.StatusBadRequest, map[string]errorBody{"error": body})
	case errors.Is(err, domain.ErrTemplateNotFound):
		a.error(w, http.StatusUnprocessableEntity, "template_not_found", err.Error())
	case errors.Is(err, domain.ErrBrandNotFound):
		a.error(w, http.StatusUnprocessableEntity, "brand_not_found", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, context.Canceled):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "request cancelled")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// flattenErrors turns nested ozzo errors into dotted field keys, e.g.
// "image_directives.0.prompt".
func flattenErrors(prefix string, errs validation.Errors) map[string]string {
	out := make(map[string]string, len(errs))
	for field, err := range errs {
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			for k, v := range flattenErrors(key, nested) {
				out[k] = v
			}
			continue
		}
		out[key] = err.Error()
	}
	return out
}
