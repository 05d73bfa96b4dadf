package notification

import (
	"context"
	"time"

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

func affected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// =========== Template Repository ===========

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepoPG{pool: pool}
}

const templateCols = `id, name, description, trigger, trigger_form_id, recipient_field, sender,
	subject, body, condition_groups, schedule, active, created_at, updated_at`

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Trigger, &t.TriggerFormID, &t.RecipientField,
		&t.Sender, &t.Subject, &t.Body, &t.ConditionGroups, &t.Schedule, &t.Active,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func groupsOrEmpty(g []ConditionGroup) []ConditionGroup {
	if g == nil {
		return []ConditionGroup{}
	}
	return g
}

func (r *templateRepoPG) Create(ctx context.Context, t *Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO email_template (id, name, description, trigger, trigger_form_id, recipient_field,
			sender, subject, body, condition_groups, schedule, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Description, t.Trigger, t.TriggerFormID, t.RecipientField,
		t.Sender, t.Subject, t.Body, groupsOrEmpty(t.ConditionGroups), t.Schedule, t.Active,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	return scanTemplate(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+templateCols+` FROM email_template WHERE id = $1`, id))
}

func (r *templateRepoPG) Update(ctx context.Context, t *Template) error {
	return conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE email_template SET name=$2, description=$3, trigger=$4, trigger_form_id=$5,
			recipient_field=$6, sender=$7, subject=$8, body=$9, condition_groups=$10,
			schedule=$11, active=$12, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Name, t.Description, t.Trigger, t.TriggerFormID, t.RecipientField,
		t.Sender, t.Subject, t.Body, groupsOrEmpty(t.ConditionGroups), t.Schedule, t.Active,
	).Scan(&t.UpdatedAt)
}

func (r *templateRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM email_template WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(tag)
}

func (r *templateRepoPG) List(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM email_template`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+templateCols+` FROM email_template ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectTemplates(rows)
	return items, total, err
}

func (r *templateRepoPG) ListActiveByTrigger(ctx context.Context, trigger Trigger, formID *uuid.UUID) ([]*Template, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+templateCols+` FROM email_template
		WHERE active AND trigger = $1 AND ($1 <> 'form_submission' OR trigger_form_id = $2)
		ORDER BY created_at`, trigger, formID)
	if err != nil {
		return nil, err
	}
	return collectTemplates(rows)
}

func collectTemplates(rows pgx.Rows) ([]*Template, error) {
	defer rows.Close()
	var items []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// =========== Outbox Repository ===========

type outboxRepoPG struct{ pool *pgxpool.Pool }

func NewOutboxRepoPG(pool *pgxpool.Pool) OutboxRepository {
	return &outboxRepoPG{pool: pool}
}

const emailCols = `id, template_id, appointment_id, recipient, sender, subject, body, send_at,
	status, error, created_at, sent_at`

func scanEmail(row pgx.Row) (*ScheduledEmail, error) {
	var e ScheduledEmail
	if err := row.Scan(&e.ID, &e.TemplateID, &e.AppointmentID, &e.Recipient, &e.Sender, &e.Subject,
		&e.Body, &e.SendAt, &e.Status, &e.Error, &e.CreatedAt, &e.SentAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *outboxRepoPG) Create(ctx context.Context, e *ScheduledEmail) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = EmailPending
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO scheduled_email (id, template_id, appointment_id, recipient, sender, subject, body, send_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		e.ID, e.TemplateID, e.AppointmentID, e.Recipient, e.Sender, e.Subject, e.Body, e.SendAt, e.Status,
	).Scan(&e.CreatedAt)
}

// ListDue locks the due rows so concurrent delivery runs skip each other's
// batches.
func (r *outboxRepoPG) ListDue(ctx context.Context, now time.Time, limit int) ([]*ScheduledEmail, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+emailCols+` FROM scheduled_email
		WHERE status = 'pending' AND send_at <= $1
		ORDER BY send_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectEmails(rows)
}

func (r *outboxRepoPG) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE scheduled_email SET status='sent', sent_at=$2, error='' WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	return affected(tag)
}

func (r *outboxRepoPG) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE scheduled_email SET status='failed', error=$2 WHERE id = $1`, id, reason)
	if err != nil {
		return err
	}
	return affected(tag)
}

func (r *outboxRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*ScheduledEmail, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM scheduled_email WHERE ($1 = '' OR status = $1)`, status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT `+emailCols+` FROM scheduled_email
		WHERE ($1 = '' OR status = $1)
		ORDER BY send_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectEmails(rows)
	return items, total, err
}

func collectEmails(rows pgx.Rows) ([]*ScheduledEmail, error) {
	defer rows.Close()
	var items []*ScheduledEmail
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
