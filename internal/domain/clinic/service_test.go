package clinic

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPatientRepo struct{ data map[uuid.UUID]*Patient }

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	m.data[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := m.data[id]; ok {
		return p, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.data[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.data[p.ID] = p
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.data {
		out = append(out, p)
	}
	return out, len(out), nil
}

type mockExaminationRepo struct{ data map[uuid.UUID]*Examination }

func (m *mockExaminationRepo) Create(_ context.Context, e *Examination) error {
	e.ID = uuid.New()
	m.data[e.ID] = e
	return nil
}

func (m *mockExaminationRepo) GetByID(_ context.Context, id uuid.UUID) (*Examination, error) {
	if e, ok := m.data[id]; ok {
		return e, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockExaminationRepo) List(_ context.Context, limit, offset int) ([]*Examination, int, error) {
	var out []*Examination
	for _, e := range m.data {
		out = append(out, e)
	}
	return out, len(out), nil
}

type mockLocationRepo struct{ data map[uuid.UUID]*Location }

func (m *mockLocationRepo) Create(_ context.Context, l *Location) error {
	l.ID = uuid.New()
	m.data[l.ID] = l
	return nil
}

func (m *mockLocationRepo) GetByID(_ context.Context, id uuid.UUID) (*Location, error) {
	if l, ok := m.data[id]; ok {
		return l, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockLocationRepo) List(_ context.Context, limit, offset int) ([]*Location, int, error) {
	var out []*Location
	for _, l := range m.data {
		out = append(out, l)
	}
	return out, len(out), nil
}

type mockDeviceRepo struct{ data map[uuid.UUID]*Device }

func (m *mockDeviceRepo) Create(_ context.Context, d *Device) error {
	d.ID = uuid.New()
	m.data[d.ID] = d
	return nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id uuid.UUID) (*Device, error) {
	if d, ok := m.data[id]; ok {
		return d, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockDeviceRepo) List(_ context.Context, limit, offset int) ([]*Device, int, error) {
	var out []*Device
	for _, d := range m.data {
		out = append(out, d)
	}
	return out, len(out), nil
}

type mockAppointmentRepo struct {
	data  map[uuid.UUID]*Appointment
	order []uuid.UUID
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.data[a.ID] = a
	m.order = append(m.order, a.ID)
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	if a, ok := m.data[id]; ok {
		return a, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.data[a.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.data[a.ID] = a
	return nil
}

func (m *mockAppointmentRepo) Latest(_ context.Context) (*Appointment, error) {
	if len(m.order) == 0 {
		return nil, pgx.ErrNoRows
	}
	return m.data[m.order[len(m.order)-1]], nil
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, id := range m.order {
		if a := m.data[id]; a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

type recordedEvent struct {
	trigger       string
	appointmentID uuid.UUID
}

type recordingPublisher struct {
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) AppointmentChanged(_ context.Context, trigger string, appointmentID uuid.UUID) error {
	p.events = append(p.events, recordedEvent{trigger, appointmentID})
	return p.err
}

type fixture struct {
	svc      *Service
	events   *recordingPublisher
	logs     *bytes.Buffer
	patient  *Patient
	exam     *Examination
	location *Location
	device   *Device
	appts    *mockAppointmentRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		events: &recordingPublisher{},
		logs:   &bytes.Buffer{},
		appts:  &mockAppointmentRepo{data: make(map[uuid.UUID]*Appointment)},
	}
	fx.svc = NewService(
		&mockPatientRepo{data: make(map[uuid.UUID]*Patient)},
		&mockExaminationRepo{data: make(map[uuid.UUID]*Examination)},
		&mockLocationRepo{data: make(map[uuid.UUID]*Location)},
		&mockDeviceRepo{data: make(map[uuid.UUID]*Device)},
		fx.appts,
		zerolog.New(fx.logs),
	)
	fx.svc.SetEventPublisher(fx.events)

	ctx := context.Background()
	fx.patient = &Patient{FirstName: "Erika", LastName: "Mustermann", Gender: "female", Email: "erika@example.com"}
	require.NoError(t, fx.svc.CreatePatient(ctx, fx.patient))
	fx.exam = &Examination{Name: "MRT Knie", DurationMinutes: 45}
	require.NoError(t, fx.svc.CreateExamination(ctx, fx.exam))
	fx.location = &Location{Name: "Praxis Mitte"}
	require.NoError(t, fx.svc.CreateLocation(ctx, fx.location))
	fx.device = &Device{Name: "MRT 1", LocationID: &fx.location.ID}
	require.NoError(t, fx.svc.CreateDevice(ctx, fx.device))
	return fx
}

var start = time.Date(2025, 4, 15, 14, 30, 0, 0, time.UTC)

func TestService_CreatePatient_Validation(t *testing.T) {
	fx := newFixture(t)
	tests := []struct {
		name string
		p    Patient
	}{
		{"missing last name", Patient{FirstName: "Max"}},
		{"bad gender", Patient{FirstName: "Max", LastName: "M", Gender: "x"}},
		{"bad email", Patient{FirstName: "Max", LastName: "M", Email: "max(at)example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, fx.svc.CreatePatient(context.Background(), &tt.p), ErrInvalidRecord)
		})
	}
}

func TestService_CreateExamination_DefaultDuration(t *testing.T) {
	fx := newFixture(t)
	e := &Examination{Name: " Röntgen "}
	require.NoError(t, fx.svc.CreateExamination(context.Background(), e))
	assert.Equal(t, "Röntgen", e.Name)
	assert.Equal(t, 30, e.DurationMinutes)
}

func TestService_CreateDevice_UnknownLocation(t *testing.T) {
	fx := newFixture(t)
	missing := uuid.New()
	err := fx.svc.CreateDevice(context.Background(), &Device{Name: "CT", LocationID: &missing})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestService_CreateAppointment(t *testing.T) {
	fx := newFixture(t)
	a := &Appointment{
		PatientID:     fx.patient.ID,
		ExaminationID: &fx.exam.ID,
		LocationID:    &fx.location.ID,
		DeviceID:      &fx.device.ID,
		StartTime:     start,
		Details:       map[string]interface{}{"insurance": "AOK"},
	}
	require.NoError(t, fx.svc.CreateAppointment(context.Background(), a))

	assert.Equal(t, StatusScheduled, a.Status)
	assert.Equal(t, start.Add(45*time.Minute), a.EndTime, "end derives from the examination duration")
	require.Len(t, fx.events.events, 1)
	assert.Equal(t, recordedEvent{EventAppointmentCreated, a.ID}, fx.events.events[0])

	latest, err := fx.svc.LatestAppointment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.ID, latest.ID)
}

func TestService_CreateAppointment_Rejected(t *testing.T) {
	fx := newFixture(t)
	missing := uuid.New()
	tests := []struct {
		name string
		a    Appointment
	}{
		{"no patient", Appointment{StartTime: start}},
		{"no start", Appointment{PatientID: fx.patient.ID}},
		{"unknown patient", Appointment{PatientID: missing, StartTime: start}},
		{"unknown examination", Appointment{PatientID: fx.patient.ID, StartTime: start, ExaminationID: &missing}},
		{"unknown device", Appointment{PatientID: fx.patient.ID, StartTime: start, DeviceID: &missing}},
		{"end before start", Appointment{PatientID: fx.patient.ID, StartTime: start, EndTime: start.Add(-time.Hour)}},
		{"bad status", Appointment{PatientID: fx.patient.ID, StartTime: start, Status: "booked"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, fx.svc.CreateAppointment(context.Background(), &tt.a), ErrInvalidRecord)
		})
	}
	assert.Empty(t, fx.events.events)
	assert.Empty(t, fx.appts.data)
}

func TestService_UpdateAppointment(t *testing.T) {
	fx := newFixture(t)
	a := &Appointment{PatientID: fx.patient.ID, ExaminationID: &fx.exam.ID, StartTime: start}
	require.NoError(t, fx.svc.CreateAppointment(context.Background(), a))

	moved := start.Add(24 * time.Hour)
	got, err := fx.svc.UpdateAppointment(context.Background(), a.ID, &AppointmentUpdate{
		StartTime: moved,
		EndTime:   moved.Add(time.Hour),
		Status:    StatusConfirmed,
		Details:   map[string]interface{}{"referrer": "Dr. Weber"},
	})
	require.NoError(t, err)
	assert.Equal(t, moved, got.StartTime)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, fx.exam.ID, *got.ExaminationID, "zero fields keep their value")
	assert.Equal(t, "Dr. Weber", got.Details["referrer"])
	assert.Equal(t, EventAppointmentUpdated, fx.events.events[1].trigger)
}

func TestService_UpdateAppointment_Rejected(t *testing.T) {
	fx := newFixture(t)
	a := &Appointment{PatientID: fx.patient.ID, StartTime: start}
	require.NoError(t, fx.svc.CreateAppointment(context.Background(), a))

	_, err := fx.svc.UpdateAppointment(context.Background(), a.ID, &AppointmentUpdate{Status: StatusCancelled})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = fx.svc.UpdateAppointment(context.Background(), uuid.New(), &AppointmentUpdate{})
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestService_CancelAppointment(t *testing.T) {
	fx := newFixture(t)
	a := &Appointment{PatientID: fx.patient.ID, StartTime: start}
	require.NoError(t, fx.svc.CreateAppointment(context.Background(), a))

	got, err := fx.svc.CancelAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, recordedEvent{EventAppointmentCancelled, a.ID}, fx.events.events[1])

	_, err = fx.svc.CancelAppointment(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrAppointmentCancelled)
	_, err = fx.svc.UpdateAppointment(context.Background(), a.ID, &AppointmentUpdate{Status: StatusConfirmed})
	assert.ErrorIs(t, err, ErrAppointmentCancelled)
	assert.Len(t, fx.events.events, 2)
}

func TestService_PublishFailureIsLogged(t *testing.T) {
	fx := newFixture(t)
	fx.events.err = errors.New("outbox unavailable")
	a := &Appointment{PatientID: fx.patient.ID, StartTime: start}

	require.NoError(t, fx.svc.CreateAppointment(context.Background(), a))
	assert.Contains(t, fx.logs.String(), "appointment event failed")
	assert.Contains(t, fx.logs.String(), a.ID.String())
}

func TestFields(t *testing.T) {
	birth := time.Date(1980, 2, 1, 0, 0, 0, 0, time.UTC)
	p := &Patient{FirstName: "Erika", LastName: "Mustermann", BirthDate: &birth}
	assert.Equal(t, birth, p.Fields()["birth_date"])
	assert.NotContains(t, (&Patient{}).Fields(), "birth_date")

	a := &Appointment{Status: StatusScheduled}
	details, ok := a.Fields()["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Empty(t, details)
}
