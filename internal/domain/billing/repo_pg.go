package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/intake/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type codeRepoPG struct{ pool *pgxpool.Pool }

func NewCodeRepoPG(pool *pgxpool.Pool) CodeRepository {
	return &codeRepoPG{pool: pool}
}

func (r *codeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const codeCols = `id, code, description, price, active, created_at, updated_at`

func (r *codeRepoPG) scanCode(row pgx.Row) (*Code, error) {
	var c Code
	if err := row.Scan(&c.ID, &c.Code, &c.Description, &c.Price, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *codeRepoPG) Create(ctx context.Context, c *Code) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing_code (id, code, description, price, active)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		c.ID, c.Code, c.Description, c.Price, c.Active).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *codeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Code, error) {
	return r.scanCode(r.conn(ctx).QueryRow(ctx, `SELECT `+codeCols+` FROM billing_code WHERE id = $1`, id))
}

func (r *codeRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Code, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+codeCols+` FROM billing_code WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Code
	for rows.Next() {
		c, err := r.scanCode(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *codeRepoPG) Update(ctx context.Context, c *Code) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE billing_code SET code=$2, description=$3, price=$4, active=$5, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Code, c.Description, c.Price, c.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *codeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM billing_code WHERE id = $1`, id)
	return err
}

func (r *codeRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Code, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM billing_code WHERE active OR NOT $1`, activeOnly).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+codeCols+` FROM billing_code
		WHERE active OR NOT $1 ORDER BY code LIMIT $2 OFFSET $3`, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Code
	for rows.Next() {
		c, err := r.scanCode(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
