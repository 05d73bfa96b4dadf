package billing

import (
	"context"

	"github.com/google/uuid"
)

type CodeRepository interface {
	Create(ctx context.Context, c *Code) error
	GetByID(ctx context.Context, id uuid.UUID) (*Code, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Code, error)
	Update(ctx context.Context, c *Code) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Code, int, error)
}
