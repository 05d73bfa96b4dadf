package notification

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicdesk/intake/internal/domain/clinic"
)

type mockTemplateRepo struct {
	data  map[uuid.UUID]*Template
	order []uuid.UUID
}

func newMockTemplateRepo() *mockTemplateRepo {
	return &mockTemplateRepo{data: make(map[uuid.UUID]*Template)}
}

func (m *mockTemplateRepo) Create(_ context.Context, t *Template) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.data[t.ID] = t
	m.order = append(m.order, t.ID)
	return nil
}

func (m *mockTemplateRepo) GetByID(_ context.Context, id uuid.UUID) (*Template, error) {
	if t, ok := m.data[id]; ok {
		return t, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockTemplateRepo) Update(_ context.Context, t *Template) error {
	if _, ok := m.data[t.ID]; !ok {
		return pgx.ErrNoRows
	}
	t.UpdatedAt = time.Now()
	m.data[t.ID] = t
	return nil
}

func (m *mockTemplateRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.data[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.data, id)
	return nil
}

func (m *mockTemplateRepo) List(_ context.Context, limit, offset int) ([]*Template, int, error) {
	var out []*Template
	for _, id := range m.order {
		if t, ok := m.data[id]; ok {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (m *mockTemplateRepo) ListActiveByTrigger(_ context.Context, trigger Trigger, formID *uuid.UUID) ([]*Template, error) {
	var out []*Template
	for _, id := range m.order {
		t, ok := m.data[id]
		if !ok || !t.Active || t.Trigger != trigger {
			continue
		}
		if trigger == TriggerFormSubmission && (formID == nil || t.TriggerFormID == nil || *t.TriggerFormID != *formID) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type mockOutbox struct {
	emails []*ScheduledEmail
}

func (m *mockOutbox) Create(_ context.Context, e *ScheduledEmail) error {
	e.ID = uuid.New()
	if e.Status == "" {
		e.Status = EmailPending
	}
	m.emails = append(m.emails, e)
	return nil
}

func (m *mockOutbox) ListDue(_ context.Context, now time.Time, limit int) ([]*ScheduledEmail, error) {
	var out []*ScheduledEmail
	for _, e := range m.emails {
		if e.Status == EmailPending && !e.SendAt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SendAt.Before(out[j].SendAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOutbox) find(id uuid.UUID) *ScheduledEmail {
	for _, e := range m.emails {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (m *mockOutbox) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	e := m.find(id)
	if e == nil {
		return pgx.ErrNoRows
	}
	e.Status = EmailSent
	e.SentAt = &at
	return nil
}

func (m *mockOutbox) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	e := m.find(id)
	if e == nil {
		return pgx.ErrNoRows
	}
	e.Status = EmailFailed
	e.Error = reason
	return nil
}

func (m *mockOutbox) List(_ context.Context, status string, limit, offset int) ([]*ScheduledEmail, int, error) {
	var out []*ScheduledEmail
	for _, e := range m.emails {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

// fakeClinic serves clinic records from memory.
type fakeClinic struct {
	patients     map[uuid.UUID]*clinic.Patient
	examinations map[uuid.UUID]*clinic.Examination
	locations    map[uuid.UUID]*clinic.Location
	devices      map[uuid.UUID]*clinic.Device
	appointments map[uuid.UUID]*clinic.Appointment
	latest       *clinic.Appointment
}

func newFakeClinic() *fakeClinic {
	return &fakeClinic{
		patients:     make(map[uuid.UUID]*clinic.Patient),
		examinations: make(map[uuid.UUID]*clinic.Examination),
		locations:    make(map[uuid.UUID]*clinic.Location),
		devices:      make(map[uuid.UUID]*clinic.Device),
		appointments: make(map[uuid.UUID]*clinic.Appointment),
	}
}

func lookup[T any](m map[uuid.UUID]*T, id uuid.UUID) (*T, error) {
	if v, ok := m[id]; ok {
		return v, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeClinic) GetAppointment(_ context.Context, id uuid.UUID) (*clinic.Appointment, error) {
	return lookup(f.appointments, id)
}

func (f *fakeClinic) LatestAppointment(_ context.Context) (*clinic.Appointment, error) {
	if f.latest == nil {
		return nil, pgx.ErrNoRows
	}
	return f.latest, nil
}

func (f *fakeClinic) GetPatient(_ context.Context, id uuid.UUID) (*clinic.Patient, error) {
	return lookup(f.patients, id)
}

func (f *fakeClinic) GetExamination(_ context.Context, id uuid.UUID) (*clinic.Examination, error) {
	return lookup(f.examinations, id)
}

func (f *fakeClinic) GetLocation(_ context.Context, id uuid.UUID) (*clinic.Location, error) {
	return lookup(f.locations, id)
}

func (f *fakeClinic) GetDevice(_ context.Context, id uuid.UUID) (*clinic.Device, error) {
	return lookup(f.devices, id)
}

// addAppointment stores a full appointment for Erika Muster starting at
// start and makes it the latest one.
func (f *fakeClinic) addAppointment(start time.Time, gender string) *clinic.Appointment {
	p := &clinic.Patient{ID: uuid.New(), FirstName: "Erika", LastName: "Muster", Gender: gender,
		Email: "erika.muster@example.com"}
	e := &clinic.Examination{ID: uuid.New(), Name: "MRT Knie", DurationMinutes: 45}
	l := &clinic.Location{ID: uuid.New(), Name: "Praxis Mitte", Address: "Friedrichstraße 1"}
	d := &clinic.Device{ID: uuid.New(), Name: "MRT 1", Model: "Magnetom"}
	f.patients[p.ID] = p
	f.examinations[e.ID] = e
	f.locations[l.ID] = l
	f.devices[d.ID] = d

	a := &clinic.Appointment{
		ID:            uuid.New(),
		PatientID:     p.ID,
		ExaminationID: &e.ID,
		LocationID:    &l.ID,
		DeviceID:      &d.ID,
		StartTime:     start,
		EndTime:       start.Add(45 * time.Minute),
		Status:        clinic.StatusScheduled,
		Details:       map[string]interface{}{"insurance": "AOK"},
	}
	f.appointments[a.ID] = a
	f.latest = a
	return a
}
