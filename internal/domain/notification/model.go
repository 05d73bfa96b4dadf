package notification

import (
	"time"

	"github.com/google/uuid"
)

type Trigger string

const (
	TriggerFormSubmission       Trigger = "form_submission"
	TriggerAppointmentCreated   Trigger = "appointment_created"
	TriggerAppointmentUpdated   Trigger = "appointment_updated"
	TriggerAppointmentCancelled Trigger = "appointment_cancelled"
)

var validTriggers = map[Trigger]bool{
	TriggerFormSubmission: true, TriggerAppointmentCreated: true,
	TriggerAppointmentUpdated: true, TriggerAppointmentCancelled: true,
}

func (t Trigger) Valid() bool {
	return validTriggers[t]
}

const defaultRecipientField = "patient.email"

// Template maps to the email_template table. ConditionGroups and Schedule
// are stored as jsonb.
type Template struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	Name            string           `db:"name" json:"name"`
	Description     string           `db:"description" json:"description,omitempty"`
	Trigger         Trigger          `db:"trigger" json:"trigger"`
	TriggerFormID   *uuid.UUID       `db:"trigger_form_id" json:"trigger_form_id,omitempty"`
	RecipientField  string           `db:"recipient_field" json:"recipient_field"`
	Sender          string           `db:"sender" json:"sender"`
	Subject         string           `db:"subject" json:"subject"`
	Body            string           `db:"body" json:"body"`
	ConditionGroups []ConditionGroup `db:"condition_groups" json:"condition_groups"`
	Schedule        Schedule         `db:"schedule" json:"schedule"`
	Active          bool             `db:"active" json:"active"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

const (
	GroupAnd = "AND"
	GroupOr  = "OR"

	OpEqual    = "="
	OpNotEqual = "!="
)

// ConditionGroup combines its conditions with Operator. Groups of a template
// combine by OR.
type ConditionGroup struct {
	Operator   string      `json:"operator"`
	Conditions []Condition `json:"conditions"`
}

// Condition compares the value at Field, a dotted path such as
// "patient.gender", with the literal Value.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type ScheduleType string

const (
	ScheduleImmediate         ScheduleType = "immediate"
	ScheduleBeforeAppointment ScheduleType = "before_appointment"
	ScheduleAfterAppointment  ScheduleType = "after_appointment"
)

type Unit string

const (
	UnitHours  Unit = "hours"
	UnitDays   Unit = "days"
	UnitWeeks  Unit = "weeks"
	UnitMonths Unit = "months"
)

// Schedule is relative to the appointment start. EarliestTime and
// LatestTime are "HH:MM" in the clinic time zone.
type Schedule struct {
	Type         ScheduleType `json:"type"`
	Offset       int          `json:"offset,omitempty"`
	Unit         Unit         `json:"unit,omitempty"`
	WorkDaysOnly bool         `json:"work_days_only,omitempty"`
	EarliestTime string       `json:"earliest_time,omitempty"`
	LatestTime   string       `json:"latest_time,omitempty"`
}

const (
	EmailPending = "pending"
	EmailSent    = "sent"
	EmailFailed  = "failed"
)

// ScheduledEmail maps to the scheduled_email outbox table.
type ScheduledEmail struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TemplateID    uuid.UUID  `db:"template_id" json:"template_id"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	Recipient     string     `db:"recipient" json:"recipient"`
	Sender        string     `db:"sender" json:"sender"`
	Subject       string     `db:"subject" json:"subject"`
	Body          string     `db:"body" json:"body"`
	SendAt        time.Time  `db:"send_at" json:"send_at"`
	Status        string     `db:"status" json:"status"`
	Error         string     `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	SentAt        *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}

// Event is something that may fire templates. FormID is set for form
// submissions; AppointmentID whenever an appointment is involved.
type Event struct {
	Trigger       Trigger    `json:"trigger"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	FormID        *uuid.UUID `json:"form_id,omitempty"`
}

// Preview is a template rendered against one appointment.
type Preview struct {
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Fires         bool       `json:"fires"`
	Recipient     string     `json:"recipient"`
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	SendAt        *time.Time `json:"send_at,omitempty"`
}
