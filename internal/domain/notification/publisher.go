package notification

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicdesk/intake/internal/domain/billingform"
	"github.com/clinicdesk/intake/internal/domain/clinic"
)

var (
	_ clinic.EventPublisher           = (*Publisher)(nil)
	_ billingform.SubmissionPublisher = (*Publisher)(nil)
)

// Publisher turns clinic and billing form events into notification events.
type Publisher struct {
	svc *Service
}

func NewPublisher(svc *Service) *Publisher {
	return &Publisher{svc: svc}
}

func (p *Publisher) AppointmentChanged(ctx context.Context, trigger string, appointmentID uuid.UUID) error {
	_, err := p.svc.HandleEvent(ctx, Event{Trigger: Trigger(trigger), AppointmentID: &appointmentID})
	return err
}

func (p *Publisher) FormSubmitted(ctx context.Context, formID uuid.UUID, appointmentID *uuid.UUID) error {
	_, err := p.svc.HandleEvent(ctx, Event{Trigger: TriggerFormSubmission, FormID: &formID, AppointmentID: appointmentID})
	return err
}
