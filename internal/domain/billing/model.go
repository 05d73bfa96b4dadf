package billing

import (
	"time"

	"github.com/google/uuid"
)

// Code maps to the billing_code table. Price is in EUR.
type Code struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	Price       float64   `db:"price" json:"price"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
