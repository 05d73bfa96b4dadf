package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Template, int, error)
	// ListActiveByTrigger returns active templates for trigger. For form
	// submissions only templates bound to formID are returned.
	ListActiveByTrigger(ctx context.Context, trigger Trigger, formID *uuid.UUID) ([]*Template, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, e *ScheduledEmail) error
	// ListDue returns pending emails with send_at <= now, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledEmail, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// List filters by status when status is non-empty.
	List(ctx context.Context, status string, limit, offset int) ([]*ScheduledEmail, int, error)
}
