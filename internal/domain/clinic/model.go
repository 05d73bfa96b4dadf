package clinic

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	Title     string     `db:"title" json:"title,omitempty"`
	Gender    string     `db:"gender" json:"gender,omitempty"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Email     string     `db:"email" json:"email,omitempty"`
	Phone     string     `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Fields returns the patient keyed by column name, the shape notification
// conditions and placeholders walk.
func (p *Patient) Fields() map[string]interface{} {
	m := map[string]interface{}{
		"id":         p.ID.String(),
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"title":      p.Title,
		"gender":     p.Gender,
		"email":      p.Email,
		"phone":      p.Phone,
	}
	if p.BirthDate != nil {
		m["birth_date"] = *p.BirthDate
	}
	return m
}

// Examination maps to the examination table.
type Examination struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Preparation     string    `db:"preparation" json:"preparation,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

func (e *Examination) Fields() map[string]interface{} {
	return map[string]interface{}{
		"id":               e.ID.String(),
		"name":             e.Name,
		"description":      e.Description,
		"duration_minutes": e.DurationMinutes,
		"preparation":      e.Preparation,
	}
}

// Location maps to the location table.
type Location struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address,omitempty"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (l *Location) Fields() map[string]interface{} {
	return map[string]interface{}{
		"id":      l.ID.String(),
		"name":    l.Name,
		"address": l.Address,
		"phone":   l.Phone,
	}
}

// Device maps to the device table.
type Device struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Model      string     `db:"model" json:"model,omitempty"`
	LocationID *uuid.UUID `db:"location_id" json:"location_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

func (d *Device) Fields() map[string]interface{} {
	return map[string]interface{}{
		"id":    d.ID.String(),
		"name":  d.Name,
		"model": d.Model,
	}
}

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var validAppointmentStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true,
}

// Appointment maps to the appointment table. Details is a free-form jsonb
// document (insurance, referring doctor, notes).
type Appointment struct {
	ID            uuid.UUID              `db:"id" json:"id"`
	PatientID     uuid.UUID              `db:"patient_id" json:"patient_id"`
	ExaminationID *uuid.UUID             `db:"examination_id" json:"examination_id,omitempty"`
	LocationID    *uuid.UUID             `db:"location_id" json:"location_id,omitempty"`
	DeviceID      *uuid.UUID             `db:"device_id" json:"device_id,omitempty"`
	StartTime     time.Time              `db:"start_time" json:"start_time"`
	EndTime       time.Time              `db:"end_time" json:"end_time"`
	Status        string                 `db:"status" json:"status"`
	Details       map[string]interface{} `db:"details" json:"details,omitempty"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time              `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) Fields() map[string]interface{} {
	details := a.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":         a.ID.String(),
		"start_time": a.StartTime,
		"end_time":   a.EndTime,
		"status":     a.Status,
		"details":    details,
		"created_at": a.CreatedAt,
	}
}

// AppointmentUpdate carries the fields an update may change. Zero values are
// left untouched.
type AppointmentUpdate struct {
	ExaminationID *uuid.UUID             `json:"examination_id,omitempty"`
	LocationID    *uuid.UUID             `json:"location_id,omitempty"`
	DeviceID      *uuid.UUID             `json:"device_id,omitempty"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       time.Time              `json:"end_time"`
	Status        string                 `json:"status,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// Trigger names published for appointment changes.
const (
	EventAppointmentCreated   = "appointment_created"
	EventAppointmentUpdated   = "appointment_updated"
	EventAppointmentCancelled = "appointment_cancelled"
)
