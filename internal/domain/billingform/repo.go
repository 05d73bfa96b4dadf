package billingform

import (
	"context"

	"github.com/google/uuid"
)

type FormRepository interface {
	// Save writes the whole form atomically, reconciling stored questions
	// and options by id.
	Save(ctx context.Context, f *Form) error
	GetByID(ctx context.Context, id uuid.UUID) (*Form, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Form, int, error)
}

type CompletionRepository interface {
	Create(ctx context.Context, c *Completion) error
	ListByForm(ctx context.Context, formID uuid.UUID, limit, offset int) ([]*Completion, int, error)
}
