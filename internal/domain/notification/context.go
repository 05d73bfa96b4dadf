package notification

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/intake/internal/domain/clinic"
)

// Context is the data conditions and placeholders are evaluated against:
// one map per category (patient, examination, appointment, location,
// device) keyed by column name.
type Context map[string]interface{}

// Lookup walks a dotted path through nested maps. A missing key, a non-map
// intermediate or a nil value reports false.
func (c Context) Lookup(path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(c)
	for _, key := range strings.Split(path, ".") {
		var m map[string]interface{}
		switch v := cur.(type) {
		case map[string]interface{}:
			m = v
		case Context:
			m = v
		default:
			return nil, false
		}
		next, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = next
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// ClinicReader is the part of the clinic service the context builder needs.
type ClinicReader interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*clinic.Appointment, error)
	LatestAppointment(ctx context.Context) (*clinic.Appointment, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*clinic.Patient, error)
	GetExamination(ctx context.Context, id uuid.UUID) (*clinic.Examination, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*clinic.Location, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*clinic.Device, error)
}

// ContextBuilder assembles a Context for an appointment.
type ContextBuilder struct {
	clinic ClinicReader
}

func NewContextBuilder(c ClinicReader) *ContextBuilder {
	return &ContextBuilder{clinic: c}
}

// ForAppointment builds the context of the given appointment, or of the most
// recently created one when id is nil. With no appointment at all the context
// is empty and the appointment is nil.
func (b *ContextBuilder) ForAppointment(ctx context.Context, id *uuid.UUID) (Context, *clinic.Appointment, error) {
	var (
		appt *clinic.Appointment
		err  error
	)
	if id != nil {
		appt, err = b.clinic.GetAppointment(ctx, *id)
	} else {
		appt, err = b.clinic.LatestAppointment(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return Context{}, nil, nil
		}
	}
	if err != nil {
		return nil, nil, err
	}
	c, err := b.Build(ctx, appt)
	if err != nil {
		return nil, nil, err
	}
	return c, appt, nil
}

// Build loads the records an appointment references concurrently. A
// reference to a deleted record leaves its category out of the context.
func (b *ContextBuilder) Build(ctx context.Context, appt *clinic.Appointment) (Context, error) {
	var (
		patient     map[string]interface{}
		examination map[string]interface{}
		location    map[string]interface{}
		device      map[string]interface{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := b.clinic.GetPatient(gctx, appt.PatientID)
		if err != nil {
			return ignoreMissing(err)
		}
		patient = p.Fields()
		return nil
	})
	if appt.ExaminationID != nil {
		g.Go(func() error {
			e, err := b.clinic.GetExamination(gctx, *appt.ExaminationID)
			if err != nil {
				return ignoreMissing(err)
			}
			examination = e.Fields()
			return nil
		})
	}
	if appt.LocationID != nil {
		g.Go(func() error {
			l, err := b.clinic.GetLocation(gctx, *appt.LocationID)
			if err != nil {
				return ignoreMissing(err)
			}
			location = l.Fields()
			return nil
		})
	}
	if appt.DeviceID != nil {
		g.Go(func() error {
			d, err := b.clinic.GetDevice(gctx, *appt.DeviceID)
			if err != nil {
				return ignoreMissing(err)
			}
			device = d.Fields()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := Context{"appointment": appt.Fields()}
	for category, fields := range map[string]map[string]interface{}{
		"patient":     patient,
		"examination": examination,
		"location":    location,
		"device":      device,
	} {
		if fields != nil {
			c[category] = fields
		}
	}
	return c, nil
}

func ignoreMissing(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
