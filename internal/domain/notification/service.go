package notification

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/intake/internal/domain/clinic"
	"github.com/clinicdesk/intake/internal/platform/db"
	"github.com/clinicdesk/intake/internal/platform/mailer"
)

var contextCategories = map[string]bool{
	"patient": true, "examination": true, "appointment": true, "location": true, "device": true,
}

// Settings holds the clinic-wide rendering and delivery defaults.
type Settings struct {
	Locale        Locale
	Location      *time.Location
	DefaultSender string
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	templates TemplateRepository
	outbox    OutboxRepository
	contexts  *ContextBuilder
	sender    mailer.Sender
	renderer  Renderer
	settings  Settings
	tx        db.TxBeginner
	logger    zerolog.Logger
}

func NewService(templates TemplateRepository, outbox OutboxRepository, contexts *ContextBuilder,
	sender mailer.Sender, settings Settings, logger zerolog.Logger) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.Locale == "" {
		settings.Locale = LocaleGerman
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Service{
		templates: templates,
		outbox:    outbox,
		contexts:  contexts,
		sender:    sender,
		renderer:  NewRenderer(settings.Locale, settings.Location),
		settings:  settings,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// SetTxBeginner makes DeliverDue claim and update its batch in one
// transaction.
func (s *Service) SetTxBeginner(b db.TxBeginner) {
	s.tx = b
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.tx, fn)
}

// -- Templates --

func (s *Service) CreateTemplate(ctx context.Context, t *Template) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	return s.templates.Create(ctx, t)
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *Service) UpdateTemplate(ctx context.Context, id uuid.UUID, t *Template) error {
	existing, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return err
	}
	t.ID = id
	t.CreatedAt = existing.CreatedAt
	if err := validateTemplate(t); err != nil {
		return err
	}
	return s.templates.Update(ctx, t)
}

func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return s.templates.Delete(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	return s.templates.List(ctx, limit, offset)
}

// Catalog lists the placeholders templates may use.
func (s *Service) Catalog() []Placeholder {
	return Catalog()
}

func validateTemplate(t *Template) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return invalid("name", "is required")
	}
	if !t.Trigger.Valid() {
		return invalid("trigger", "unknown trigger %q", t.Trigger)
	}
	if t.Trigger == TriggerFormSubmission && t.TriggerFormID == nil {
		return invalid("trigger_form_id", "is required for trigger %s", t.Trigger)
	}
	if t.Trigger != TriggerFormSubmission && t.TriggerFormID != nil {
		return invalid("trigger_form_id", "is only allowed for trigger %s", TriggerFormSubmission)
	}

	t.RecipientField = strings.TrimSpace(t.RecipientField)
	if t.RecipientField == "" {
		t.RecipientField = defaultRecipientField
	}
	category, field, ok := strings.Cut(t.RecipientField, ".")
	if !ok || field == "" || !contextCategories[category] {
		return invalid("recipient_field", "expected category.field, got %q", t.RecipientField)
	}

	t.Sender = strings.TrimSpace(t.Sender)
	if t.Sender != "" {
		if _, err := mail.ParseAddress(t.Sender); err != nil {
			return invalid("sender", "invalid address %q", t.Sender)
		}
	}
	if strings.TrimSpace(t.Subject) == "" {
		return invalid("subject", "is required")
	}
	if strings.TrimSpace(t.Body) == "" {
		return invalid("body", "is required")
	}

	if t.Schedule.Type == "" {
		t.Schedule.Type = ScheduleImmediate
	}
	if err := t.Schedule.Validate(); err != nil {
		return invalid("schedule", "%v", err)
	}
	if _, err := Compile(t.ConditionGroups); err != nil {
		return invalid("condition_groups", "%v", err)
	}
	if t.ConditionGroups == nil {
		t.ConditionGroups = []ConditionGroup{}
	}
	return nil
}

// -- Preview --

// Preview renders a template against the given appointment, or the most
// recently created one when appointmentID is nil. The send time is the raw
// schedule offset without the sending window.
func (s *Service) Preview(ctx context.Context, templateID uuid.UUID, appointmentID *uuid.UUID) (*Preview, error) {
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	rule, err := Compile(t.ConditionGroups)
	if err != nil {
		return nil, invalid("condition_groups", "%v", err)
	}
	c, appt, err := s.contexts.ForAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Fires:   rule.Match(c),
		Subject: s.renderer.Render(t.Subject, c),
		Body:    s.renderer.Render(t.Body, c),
	}
	p.Recipient, _ = recipient(t, c)
	if appt != nil {
		id := appt.ID
		p.AppointmentID = &id
	}
	if at, ok := s.sendTime(t.Schedule, appt); ok {
		p.SendAt = &at
	}
	return p, nil
}

func (s *Service) sendTime(sched Schedule, appt *clinic.Appointment) (time.Time, bool) {
	now := s.settings.Now()
	if sched.Type != ScheduleImmediate && appt == nil {
		return time.Time{}, false
	}
	var start time.Time
	if appt != nil {
		start = appt.StartTime
	}
	at, err := SendTime(start, sched, now)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func recipient(t *Template, c Context) (string, bool) {
	v, ok := c.Lookup(t.RecipientField)
	if !ok {
		return "", false
	}
	addr, _ := v.(string)
	addr = strings.TrimSpace(addr)
	return addr, addr != ""
}

// -- Events --

// HandleEvent queues one email per active template of the event's trigger
// whose conditions match. A template that cannot be evaluated is logged and
// skipped. It returns the number of queued emails.
func (s *Service) HandleEvent(ctx context.Context, ev Event) (int, error) {
	if !ev.Trigger.Valid() {
		return 0, invalidEvent("trigger", "unknown trigger %q", ev.Trigger)
	}
	if ev.Trigger == TriggerFormSubmission && ev.FormID == nil {
		return 0, invalidEvent("form_id", "is required for trigger %s", ev.Trigger)
	}
	if ev.Trigger != TriggerFormSubmission && ev.AppointmentID == nil {
		return 0, invalidEvent("appointment_id", "is required for trigger %s", ev.Trigger)
	}

	templates, err := s.templates.ListActiveByTrigger(ctx, ev.Trigger, ev.FormID)
	if err != nil {
		return 0, fmt.Errorf("list templates: %w", err)
	}
	if len(templates) == 0 {
		return 0, nil
	}

	c := Context{}
	var appt *clinic.Appointment
	if ev.AppointmentID != nil {
		c, appt, err = s.contexts.ForAppointment(ctx, ev.AppointmentID)
		if err != nil {
			return 0, fmt.Errorf("build context: %w", err)
		}
	}

	queued := 0
	for _, t := range templates {
		email, err := s.prepare(t, c, appt)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("template_id", t.ID.String()).
				Str("trigger", string(ev.Trigger)).
				Msg("notification template skipped")
			continue
		}
		if email == nil {
			continue
		}
		if err := s.outbox.Create(ctx, email); err != nil {
			s.logger.Error().Err(err).Str("template_id", t.ID.String()).Msg("failed to queue email")
			continue
		}
		queued++
	}
	return queued, nil
}

var errNoRecipient = errors.New("recipient field has no address")

// prepare renders t for the event context. It returns nil when the
// template's conditions do not match.
func (s *Service) prepare(t *Template, c Context, appt *clinic.Appointment) (*ScheduledEmail, error) {
	rule, err := Compile(t.ConditionGroups)
	if err != nil {
		return nil, err
	}
	if !rule.Match(c) {
		return nil, nil
	}
	to, ok := recipient(t, c)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoRecipient, t.RecipientField)
	}
	at, ok := s.sendTime(t.Schedule, appt)
	if !ok {
		return nil, fmt.Errorf("%w: schedule %s needs an appointment", ErrInvalidSchedule, t.Schedule.Type)
	}
	if now := s.settings.Now(); at.Before(now) {
		at = now
	}
	at = t.Schedule.Window(s.settings.Location).Adjust(at)

	from := t.Sender
	if from == "" {
		from = s.settings.DefaultSender
	}
	email := &ScheduledEmail{
		TemplateID: t.ID,
		Recipient:  to,
		Sender:     from,
		Subject:    s.renderer.Render(t.Subject, c),
		Body:       s.renderer.Render(t.Body, c),
		SendAt:     at,
		Status:     EmailPending,
	}
	if appt != nil {
		id := appt.ID
		email.AppointmentID = &id
	}
	return email, nil
}

// -- Delivery --

// DeliveryReport counts the outcome of one DeliverDue run.
type DeliveryReport struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// DeliverDue sends up to limit pending emails due at now. A failed send is
// marked failed and not retried.
func (s *Service) DeliverDue(ctx context.Context, now time.Time, limit int) (DeliveryReport, error) {
	var report DeliveryReport
	err := s.inTx(ctx, func(ctx context.Context) error {
		due, err := s.outbox.ListDue(ctx, now, limit)
		if err != nil {
			return fmt.Errorf("list due emails: %w", err)
		}
		for _, e := range due {
			msg := mailer.Message{From: e.Sender, To: e.Recipient, Subject: e.Subject, Body: e.Body}
			if err := s.sender.Send(ctx, msg); err != nil {
				s.logger.Error().Err(err).
					Str("email_id", e.ID.String()).
					Str("template_id", e.TemplateID.String()).
					Msg("email delivery failed")
				if err := s.outbox.MarkFailed(ctx, e.ID, err.Error()); err != nil {
					return fmt.Errorf("mark email %s failed: %w", e.ID, err)
				}
				report.Failed++
				continue
			}
			if err := s.outbox.MarkSent(ctx, e.ID, now); err != nil {
				return fmt.Errorf("mark email %s sent: %w", e.ID, err)
			}
			report.Sent++
		}
		return nil
	})
	return report, err
}

func (s *Service) ListScheduled(ctx context.Context, status string, limit, offset int) ([]*ScheduledEmail, int, error) {
	return s.outbox.List(ctx, status, limit, offset)
}
