package billingform

import (
	"context"
	"fmt"

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

// =========== Form Repository ===========

type formRepoPG struct{ pool *pgxpool.Pool }

func NewFormRepoPG(pool *pgxpool.Pool) FormRepository {
	return &formRepoPG{pool: pool}
}

func (r *formRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const formCols = `id, name, description, category_id, created_at, updated_at`

const questionCols = `id, form_id, position, text, type, required, depends_on_question_id, depends_on_option_id`

const optionCols = `o.id, o.question_id, o.position, o.text, o.billing_code_id, o.option_type`

func scanForm(row pgx.Row) (*Form, error) {
	var f Form
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &f.CategoryID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

// Save runs in one transaction: upsert the form, clear stored dependency
// pairs, delete rows whose ids are gone, upsert questions and options in
// order, then write the dependency pairs.
func (r *formRepoPG) Save(ctx context.Context, f *Form) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)

		if err := q.QueryRow(ctx, `
			INSERT INTO billing_form (id, name, description, category_id)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, description=EXCLUDED.description,
				category_id=EXCLUDED.category_id, updated_at=NOW()
			RETURNING created_at, updated_at`,
			f.ID, f.Name, f.Description, f.CategoryID).Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
			return fmt.Errorf("upsert form: %w", err)
		}

		if _, err := q.Exec(ctx, `
			UPDATE billing_form_question SET depends_on_question_id=NULL, depends_on_option_id=NULL
			WHERE form_id = $1`, f.ID); err != nil {
			return fmt.Errorf("clear dependencies: %w", err)
		}

		questionIDs := make([]uuid.UUID, 0, len(f.Questions))
		var optionIDs []uuid.UUID
		for _, qu := range f.Questions {
			questionIDs = append(questionIDs, qu.ID)
			for _, o := range qu.Options {
				optionIDs = append(optionIDs, o.ID)
			}
		}
		if optionIDs == nil {
			optionIDs = []uuid.UUID{}
		}
		if _, err := q.Exec(ctx, `
			DELETE FROM billing_form_option o USING billing_form_question qu
			WHERE o.question_id = qu.id AND qu.form_id = $1 AND NOT (o.id = ANY($2))`,
			f.ID, optionIDs); err != nil {
			return fmt.Errorf("delete removed options: %w", err)
		}
		if _, err := q.Exec(ctx, `
			DELETE FROM billing_form_question WHERE form_id = $1 AND NOT (id = ANY($2))`,
			f.ID, questionIDs); err != nil {
			return fmt.Errorf("delete removed questions: %w", err)
		}

		for _, qu := range f.Questions {
			tag, err := q.Exec(ctx, `
				INSERT INTO billing_form_question (id, form_id, position, text, type, required)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (id) DO UPDATE SET position=EXCLUDED.position, text=EXCLUDED.text,
					type=EXCLUDED.type, required=EXCLUDED.required
				WHERE billing_form_question.form_id = EXCLUDED.form_id`,
				qu.ID, f.ID, qu.Position, qu.Text, string(qu.Type), qu.Required)
			if err != nil {
				return fmt.Errorf("upsert question %d: %w", qu.Position, err)
			}
			if tag.RowsAffected() == 0 {
				return invalid(fmt.Sprintf("questions[%d].id", qu.Position), "belongs to another form")
			}
			for _, o := range qu.Options {
				tag, err := q.Exec(ctx, `
					INSERT INTO billing_form_option (id, question_id, position, text, billing_code_id, option_type)
					VALUES ($1,$2,$3,$4,$5,$6)
					ON CONFLICT (id) DO UPDATE SET question_id=EXCLUDED.question_id, position=EXCLUDED.position,
						text=EXCLUDED.text, billing_code_id=EXCLUDED.billing_code_id, option_type=EXCLUDED.option_type
					WHERE billing_form_option.question_id IN (SELECT id FROM billing_form_question WHERE form_id = $7)`,
					o.ID, qu.ID, o.Position, o.Text, o.BillingCodeID, o.OptionType, f.ID)
				if err != nil {
					return fmt.Errorf("upsert option %d of question %d: %w", o.Position, qu.Position, err)
				}
				if tag.RowsAffected() == 0 {
					return invalid(fmt.Sprintf("questions[%d].options[%d].id", qu.Position, o.Position), "belongs to another form")
				}
			}
		}

		for _, qu := range f.Questions {
			if qu.DependsOnQuestionID == nil && qu.DependsOnOptionID == nil {
				continue
			}
			if qu.DependsOnQuestionID == nil || qu.DependsOnOptionID == nil {
				return &DependencyError{Index: qu.Position, QuestionID: qu.ID,
					Reason: "only one side of the dependency pair is set", Err: ErrInconsistentDependency}
			}
			if _, err := q.Exec(ctx, `
				UPDATE billing_form_question SET depends_on_question_id=$2, depends_on_option_id=$3
				WHERE id = $1`,
				qu.ID, *qu.DependsOnQuestionID, *qu.DependsOnOptionID); err != nil {
				return fmt.Errorf("set dependency of question %d: %w", qu.Position, err)
			}
		}
		return nil
	})
}

func (r *formRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Form, error) {
	f, err := scanForm(r.conn(ctx).QueryRow(ctx, `SELECT `+formCols+` FROM billing_form WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadQuestions(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *formRepoPG) loadQuestions(ctx context.Context, f *Form) error {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+questionCols+` FROM billing_form_question
		WHERE form_id = $1 ORDER BY position`, f.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*Question)
	f.Questions = nil
	for rows.Next() {
		var qu Question
		var typ string
		if err := rows.Scan(&qu.ID, &qu.FormID, &qu.Position, &qu.Text, &typ, &qu.Required,
			&qu.DependsOnQuestionID, &qu.DependsOnOptionID); err != nil {
			return err
		}
		qu.Type = QuestionType(typ)
		if (qu.DependsOnQuestionID == nil) != (qu.DependsOnOptionID == nil) {
			return &DependencyError{Index: qu.Position, QuestionID: qu.ID,
				Reason: "stored with only one side of the dependency pair", Err: ErrInconsistentDependency}
		}
		byID[qu.ID] = &qu
		f.Questions = append(f.Questions, &qu)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	orows, err := r.conn(ctx).Query(ctx, `SELECT `+optionCols+` FROM billing_form_option o
		JOIN billing_form_question qu ON qu.id = o.question_id
		WHERE qu.form_id = $1 ORDER BY qu.position, o.position`, f.ID)
	if err != nil {
		return err
	}
	defer orows.Close()
	for orows.Next() {
		var o Option
		if err := orows.Scan(&o.ID, &o.QuestionID, &o.Position, &o.Text, &o.BillingCodeID, &o.OptionType); err != nil {
			return err
		}
		if qu, ok := byID[o.QuestionID]; ok {
			qu.Options = append(qu.Options, &o)
		}
	}
	return orows.Err()
}

func (r *formRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM billing_form WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// List returns forms without their questions.
func (r *formRepoPG) List(ctx context.Context, limit, offset int) ([]*Form, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing_form`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+formCols+` FROM billing_form ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	return items, total, rows.Err()
}

// =========== Completion Repository ===========

type completionRepoPG struct{ pool *pgxpool.Pool }

func NewCompletionRepoPG(pool *pgxpool.Pool) CompletionRepository {
	return &completionRepoPG{pool: pool}
}

func (r *completionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *completionRepoPG) Create(ctx context.Context, c *Completion) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if err := q.QueryRow(ctx, `
			INSERT INTO billing_form_completion (id, form_id, appointment_id, total)
			VALUES ($1,$2,$3,$4) RETURNING created_at`,
			c.ID, c.FormID, c.AppointmentID, c.Total).Scan(&c.CreatedAt); err != nil {
			return fmt.Errorf("insert completion: %w", err)
		}
		for _, it := range c.Items {
			if it.ID == uuid.Nil {
				it.ID = uuid.New()
			}
			if _, err := q.Exec(ctx, `
				INSERT INTO billing_form_answer (id, completion_id, question_id, option_id, value,
					billing_code_id, billing_code, price)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				it.ID, c.ID, it.QuestionID, it.OptionID, it.Value,
				it.BillingCodeID, it.BillingCode, it.Price); err != nil {
				return fmt.Errorf("insert answer: %w", err)
			}
		}
		return nil
	})
}

func (r *completionRepoPG) ListByForm(ctx context.Context, formID uuid.UUID, limit, offset int) ([]*Completion, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM billing_form_completion WHERE form_id = $1`, formID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, form_id, appointment_id, total, created_at FROM billing_form_completion
		WHERE form_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, formID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Completion
	byID := make(map[uuid.UUID]*Completion)
	var ids []uuid.UUID
	for rows.Next() {
		var c Completion
		if err := rows.Scan(&c.ID, &c.FormID, &c.AppointmentID, &c.Total, &c.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &c)
		byID[c.ID] = &c
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return items, total, nil
	}

	arows, err := r.conn(ctx).Query(ctx, `
		SELECT id, completion_id, question_id, option_id, value, billing_code_id, billing_code, price
		FROM billing_form_answer WHERE completion_id = ANY($1)`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer arows.Close()
	for arows.Next() {
		var it CompletionItem
		var completionID uuid.UUID
		if err := arows.Scan(&it.ID, &completionID, &it.QuestionID, &it.OptionID, &it.Value,
			&it.BillingCodeID, &it.BillingCode, &it.Price); err != nil {
			return nil, 0, err
		}
		if c, ok := byID[completionID]; ok {
			c.Items = append(c.Items, &it)
		}
	}
	return items, total, arows.Err()
}
