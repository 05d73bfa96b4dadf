package clinic

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// listRows runs an unfiltered count and a page query taking $1 limit and
// $2 offset, scanning each row with scan.
func listRows[T any](ctx context.Context, q queryable, countSQL, pageSQL string, scan func(pgx.Row) (T, error), limit, offset int) ([]T, int, error) {
	var total int
	if err := q.QueryRow(ctx, countSQL).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, pageSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func affected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, first_name, last_name, title, gender, birth_date, email, phone, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Title, &p.Gender, &p.BirthDate,
		&p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, first_name, last_name, title, gender, birth_date, email, phone)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Title, p.Gender, p.BirthDate, p.Email, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, title=$4, gender=$5, birth_date=$6,
			email=$7, phone=$8, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Title, p.Gender, p.BirthDate, p.Email, p.Phone)
	if err != nil {
		return err
	}
	return affected(tag)
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return listRows(ctx, conn(ctx, r.pool),
		`SELECT COUNT(*) FROM patient`,
		`SELECT `+patientCols+` FROM patient ORDER BY last_name, first_name LIMIT $1 OFFSET $2`,
		scanPatient, limit, offset)
}

// =========== Examination Repository ===========

type examinationRepoPG struct{ pool *pgxpool.Pool }

func NewExaminationRepoPG(pool *pgxpool.Pool) ExaminationRepository {
	return &examinationRepoPG{pool: pool}
}

const examinationCols = `id, name, description, duration_minutes, preparation, created_at, updated_at`

func scanExamination(row pgx.Row) (*Examination, error) {
	var e Examination
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.DurationMinutes, &e.Preparation,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *examinationRepoPG) Create(ctx context.Context, e *Examination) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO examination (id, name, description, duration_minutes, preparation)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		e.ID, e.Name, e.Description, e.DurationMinutes, e.Preparation,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *examinationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Examination, error) {
	return scanExamination(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+examinationCols+` FROM examination WHERE id = $1`, id))
}

func (r *examinationRepoPG) List(ctx context.Context, limit, offset int) ([]*Examination, int, error) {
	return listRows(ctx, conn(ctx, r.pool),
		`SELECT COUNT(*) FROM examination`,
		`SELECT `+examinationCols+` FROM examination ORDER BY name LIMIT $1 OFFSET $2`,
		scanExamination, limit, offset)
}

// =========== Location Repository ===========

type locationRepoPG struct{ pool *pgxpool.Pool }

func NewLocationRepoPG(pool *pgxpool.Pool) LocationRepository {
	return &locationRepoPG{pool: pool}
}

const locationCols = `id, name, address, phone, created_at, updated_at`

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	if err := row.Scan(&l.ID, &l.Name, &l.Address, &l.Phone, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *locationRepoPG) Create(ctx context.Context, l *Location) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO location (id, name, address, phone)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		l.ID, l.Name, l.Address, l.Phone,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *locationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Location, error) {
	return scanLocation(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+locationCols+` FROM location WHERE id = $1`, id))
}

func (r *locationRepoPG) List(ctx context.Context, limit, offset int) ([]*Location, int, error) {
	return listRows(ctx, conn(ctx, r.pool),
		`SELECT COUNT(*) FROM location`,
		`SELECT `+locationCols+` FROM location ORDER BY name LIMIT $1 OFFSET $2`,
		scanLocation, limit, offset)
}

// =========== Device Repository ===========

type deviceRepoPG struct{ pool *pgxpool.Pool }

func NewDeviceRepoPG(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepoPG{pool: pool}
}

const deviceCols = `id, name, model, location_id, created_at, updated_at`

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	if err := row.Scan(&d.ID, &d.Name, &d.Model, &d.LocationID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deviceRepoPG) Create(ctx context.Context, d *Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO device (id, name, model, location_id)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Model, d.LocationID,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *deviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	return scanDevice(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+deviceCols+` FROM device WHERE id = $1`, id))
}

func (r *deviceRepoPG) List(ctx context.Context, limit, offset int) ([]*Device, int, error) {
	return listRows(ctx, conn(ctx, r.pool),
		`SELECT COUNT(*) FROM device`,
		`SELECT `+deviceCols+` FROM device ORDER BY name LIMIT $1 OFFSET $2`,
		scanDevice, limit, offset)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, patient_id, examination_id, location_id, device_id,
	start_time, end_time, status, details, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(&a.ID, &a.PatientID, &a.ExaminationID, &a.LocationID, &a.DeviceID,
		&a.StartTime, &a.EndTime, &a.Status, &a.Details, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func detailsOrEmpty(d map[string]interface{}) map[string]interface{} {
	if d == nil {
		return map[string]interface{}{}
	}
	return d
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, examination_id, location_id, device_id,
			start_time, end_time, status, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.ExaminationID, a.LocationID, a.DeviceID,
		a.StartTime, a.EndTime, a.Status, detailsOrEmpty(a.Details),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	return conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointment SET examination_id=$2, location_id=$3, device_id=$4,
			start_time=$5, end_time=$6, status=$7, details=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.ExaminationID, a.LocationID, a.DeviceID,
		a.StartTime, a.EndTime, a.Status, detailsOrEmpty(a.Details),
	).Scan(&a.UpdatedAt)
}

func (r *appointmentRepoPG) Latest(ctx context.Context) (*Appointment, error) {
	return scanAppt(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment ORDER BY created_at DESC, id LIMIT 1`))
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+apptCols+` FROM appointment WHERE patient_id = $1
		ORDER BY start_time DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
