package clinic

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidRecord        = errors.New("invalid clinic record")
	ErrAppointmentCancelled = errors.New("appointment is cancelled")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}

const defaultExaminationMinutes = 30

// EventPublisher receives appointment triggers. Implementations must not
// block the request for long; failures are logged and never undo the change.
type EventPublisher interface {
	AppointmentChanged(ctx context.Context, trigger string, appointmentID uuid.UUID) error
}

type Service struct {
	patients     PatientRepository
	examinations ExaminationRepository
	locations    LocationRepository
	devices      DeviceRepository
	appointments AppointmentRepository
	events       EventPublisher
	logger       zerolog.Logger
}

func NewService(p PatientRepository, e ExaminationRepository, l LocationRepository, d DeviceRepository, a AppointmentRepository, logger zerolog.Logger) *Service {
	return &Service{
		patients:     p,
		examinations: e,
		locations:    l,
		devices:      d,
		appointments: a,
		logger:       logger.With().Str("component", "clinic").Logger(),
	}
}

func (s *Service) SetEventPublisher(p EventPublisher) {
	s.events = p
}

// -- Patient --

var validGenders = map[string]bool{"": true, "male": true, "female": true, "other": true}

func validatePatient(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.TrimSpace(p.Email)
	if p.FirstName == "" || p.LastName == "" {
		return invalidf("first_name and last_name are required")
	}
	if !validGenders[p.Gender] {
		return invalidf("invalid gender: %s", p.Gender)
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return invalidf("invalid email: %s", p.Email)
		}
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validatePatient(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// -- Examination, Location, Device --

func (s *Service) CreateExamination(ctx context.Context, e *Examination) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return invalidf("name is required")
	}
	if e.DurationMinutes == 0 {
		e.DurationMinutes = defaultExaminationMinutes
	}
	if e.DurationMinutes < 0 {
		return invalidf("duration_minutes must be positive")
	}
	return s.examinations.Create(ctx, e)
}

func (s *Service) GetExamination(ctx context.Context, id uuid.UUID) (*Examination, error) {
	return s.examinations.GetByID(ctx, id)
}

func (s *Service) ListExaminations(ctx context.Context, limit, offset int) ([]*Examination, int, error) {
	return s.examinations.List(ctx, limit, offset)
}

func (s *Service) CreateLocation(ctx context.Context, l *Location) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return invalidf("name is required")
	}
	return s.locations.Create(ctx, l)
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	return s.locations.GetByID(ctx, id)
}

func (s *Service) ListLocations(ctx context.Context, limit, offset int) ([]*Location, int, error) {
	return s.locations.List(ctx, limit, offset)
}

func (s *Service) CreateDevice(ctx context.Context, d *Device) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return invalidf("name is required")
	}
	if d.LocationID != nil {
		if err := exists(ctx, "location", *d.LocationID, s.locations.GetByID); err != nil {
			return err
		}
	}
	return s.devices.Create(ctx, d)
}

func (s *Service) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	return s.devices.GetByID(ctx, id)
}

func (s *Service) ListDevices(ctx context.Context, limit, offset int) ([]*Device, int, error) {
	return s.devices.List(ctx, limit, offset)
}

// exists turns a missing referenced record into a validation error.
func exists[T any](ctx context.Context, kind string, id uuid.UUID, get func(context.Context, uuid.UUID) (T, error)) error {
	if _, err := get(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invalidf("%s %s does not exist", kind, id)
		}
		return err
	}
	return nil
}

// -- Appointment --

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return invalidf("patient_id is required")
	}
	if a.StartTime.IsZero() {
		return invalidf("start_time is required")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if err := exists(ctx, "patient", a.PatientID, s.patients.GetByID); err != nil {
		return err
	}
	if a.EndTime.IsZero() {
		end, err := s.defaultEnd(ctx, a)
		if err != nil {
			return err
		}
		a.EndTime = end
	}
	if err := s.checkAppointment(ctx, a); err != nil {
		return err
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return err
	}
	s.publish(ctx, EventAppointmentCreated, a.ID)
	return nil
}

func (s *Service) defaultEnd(ctx context.Context, a *Appointment) (time.Time, error) {
	minutes := defaultExaminationMinutes
	if a.ExaminationID != nil {
		e, err := s.examinations.GetByID(ctx, *a.ExaminationID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return time.Time{}, invalidf("examination %s does not exist", *a.ExaminationID)
			}
			return time.Time{}, err
		}
		minutes = e.DurationMinutes
	}
	return a.StartTime.Add(time.Duration(minutes) * time.Minute), nil
}

func (s *Service) checkAppointment(ctx context.Context, a *Appointment) error {
	if !validAppointmentStatuses[a.Status] {
		return invalidf("invalid appointment status: %s", a.Status)
	}
	if a.EndTime.Before(a.StartTime) {
		return invalidf("end_time is before start_time")
	}
	if a.ExaminationID != nil {
		if err := exists(ctx, "examination", *a.ExaminationID, s.examinations.GetByID); err != nil {
			return err
		}
	}
	if a.LocationID != nil {
		if err := exists(ctx, "location", *a.LocationID, s.locations.GetByID); err != nil {
			return err
		}
	}
	if a.DeviceID != nil {
		if err := exists(ctx, "device", *a.DeviceID, s.devices.GetByID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// LatestAppointment returns the most recently created appointment.
func (s *Service) LatestAppointment(ctx context.Context) (*Appointment, error) {
	return s.appointments.Latest(ctx)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

// UpdateAppointment applies the non-zero fields of upd. Cancelled
// appointments are final and cancelling goes through CancelAppointment.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, upd *AppointmentUpdate) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return nil, ErrAppointmentCancelled
	}
	if upd.Status == StatusCancelled {
		return nil, invalidf("use the cancel operation to cancel an appointment")
	}
	if err := copier.CopyWithOption(a, upd, copier.Option{IgnoreEmpty: true}); err != nil {
		return nil, fmt.Errorf("apply appointment update: %w", err)
	}
	if err := s.checkAppointment(ctx, a); err != nil {
		return nil, err
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, EventAppointmentUpdated, a.ID)
	return a, nil
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return nil, ErrAppointmentCancelled
	}
	a.Status = StatusCancelled
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, EventAppointmentCancelled, a.ID)
	return a, nil
}

func (s *Service) publish(ctx context.Context, trigger string, appointmentID uuid.UUID) {
	if s.events == nil {
		return
	}
	if err := s.events.AppointmentChanged(ctx, trigger, appointmentID); err != nil {
		s.logger.Error().Err(err).
			Str("trigger", trigger).
			Str("appointment_id", appointmentID.String()).
			Msg("appointment event failed")
	}
}
