// Package notify delivers job lifecycle events to the owning client session.
// Delivery is best-effort: events published while nobody listens are lost.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

// Event types.
const (
	JobStarted   = "job:started"
	JobProgress  = "job:progress"
	JobCompleted = "job:completed"
	JobFailed    = "job:failed"
)

// Event is one lifecycle notification for a job.
type Event struct {
	Type     string         `json:"type"`
	JobID    string         `json:"job_id"`
	OwnerID  string         `json:"owner_id"`
	Progress int            `json:"progress"`
	Result   *domain.Result `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	At       time.Time      `json:"at"`
}

// Publisher emits events toward subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
