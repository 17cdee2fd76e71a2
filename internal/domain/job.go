package domain

import (
	"sort"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ImageDirective asks the image acquisition step to produce one image slot.
type ImageDirective struct {
	Slot   string `json:"slot"`
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
}

// Payload is the validated generation request accepted at enqueue time.
type Payload struct {
	BrandID         string            `json:"brand_id"`
	TemplateID      string            `json:"template_id"`
	Formats         []Format          `json:"formats,omitempty"`
	Content         map[string]any    `json:"content,omitempty"`
	GenerateImages  bool              `json:"generate_images"`
	ImageDirectives []ImageDirective  `json:"image_directives,omitempty"`
	Images          map[string]string `json:"images,omitempty"`
	Locale          string            `json:"locale,omitempty"`
}

// Job encapsulates the lifecycle of one creative generation request.
type Job struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Payload     Payload    `json:"payload"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreativeStatus flags the outcome of a single format.
type CreativeStatus string

const (
	CreativeOK            CreativeStatus = "ok"
	CreativeRenderFailed  CreativeStatus = "render_failed"
	CreativeCaptureFailed CreativeStatus = "capture_failed"
)

// Result aggregates the per-format output of a completed job.
type Result struct {
	Creatives []Creative        `json:"creatives"`
	Images    map[string]string `json:"images,omitempty"`
	// ImageIDs maps slot to the storage object holding a generated image.
	ImageIDs map[string]string `json:"image_ids,omitempty"`
}

// Creative is the rendered output for one format.
type Creative struct {
	Format     Format         `json:"format"`
	Status     CreativeStatus `json:"status"`
	HTML       string         `json:"-"`
	CSS        string         `json:"-"`
	MarkupID   string         `json:"markup_id,omitempty"`
	MarkupURL  string         `json:"markup_url,omitempty"`
	PreviewID  string         `json:"preview_id,omitempty"`
	PreviewURL string         `json:"preview_url,omitempty"`
	Validation *Report        `json:"validation,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Issue is a single validator finding.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Report is the validation outcome of one rendered creative.
type Report struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Score    int     `json:"score"`
}

// ObjectIDs lists the durable storage objects referenced by the result.
func (r *Result) ObjectIDs() []string {
	if r == nil {
		return nil
	}
	var ids []string
	for _, c := range r.Creatives {
		if c.MarkupID != "" {
			ids = append(ids, c.MarkupID)
		}
		if c.PreviewID != "" {
			ids = append(ids, c.PreviewID)
		}
	}
	slots := make([]string, 0, len(r.ImageIDs))
	for slot := range r.ImageIDs {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		ids = append(ids, r.ImageIDs[slot])
	}
	return ids
}
