package clinic

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type ExaminationRepository interface {
	Create(ctx context.Context, e *Examination) error
	GetByID(ctx context.Context, id uuid.UUID) (*Examination, error)
	List(ctx context.Context, limit, offset int) ([]*Examination, int, error)
}

type LocationRepository interface {
	Create(ctx context.Context, l *Location) error
	GetByID(ctx context.Context, id uuid.UUID) (*Location, error)
	List(ctx context.Context, limit, offset int) ([]*Location, int, error)
}

type DeviceRepository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	List(ctx context.Context, limit, offset int) ([]*Device, int, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// Latest returns the most recently created appointment.
	Latest(ctx context.Context) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}
