package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidCode = errors.New("invalid billing code")

type Service struct {
	codes CodeRepository
}

func NewService(codes CodeRepository) *Service {
	return &Service{codes: codes}
}

func validateCode(c *Code) error {
	c.Code = strings.TrimSpace(c.Code)
	if c.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidCode)
	}
	if c.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidCode)
	}
	return nil
}

func (s *Service) CreateCode(ctx context.Context, c *Code) error {
	if err := validateCode(c); err != nil {
		return err
	}
	return s.codes.Create(ctx, c)
}

func (s *Service) GetCode(ctx context.Context, id uuid.UUID) (*Code, error) {
	return s.codes.GetByID(ctx, id)
}

func (s *Service) UpdateCode(ctx context.Context, c *Code) error {
	if err := validateCode(c); err != nil {
		return err
	}
	return s.codes.Update(ctx, c)
}

func (s *Service) DeleteCode(ctx context.Context, id uuid.UUID) error {
	return s.codes.Delete(ctx, id)
}

func (s *Service) ListCodes(ctx context.Context, activeOnly bool, limit, offset int) ([]*Code, int, error) {
	return s.codes.List(ctx, activeOnly, limit, offset)
}

// Lookup returns the codes for ids keyed by id. Unknown ids are absent from
// the result.
func (s *Service) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Code, error) {
	seen := make(map[uuid.UUID]bool, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	codes, err := s.codes.GetByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("lookup billing codes: %w", err)
	}
	out := make(map[uuid.UUID]*Code, len(codes))
	for _, c := range codes {
		out[c.ID] = c
	}
	return out, nil
}
