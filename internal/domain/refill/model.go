// Package refill tracks when patients should be reminded to refill a medication. Its cycle
// is independent of daily dose tracking:
//
//	Scheduled -> Due -> Reminded -> (Advance) -> Scheduled
//
// Scheduled -> Due is purely time based and never stored.
package refill

import (
	"context"
	"time"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/doseclock"
)

type Phase string

const (
	PhaseScheduled Phase = "scheduled"
	PhaseDue       Phase = "due"
	PhaseReminded  Phase = "reminded"
	PhaseInactive  Phase = "inactive"
)

type Reminder struct {
	ID               string     `json:"id"`
	PatientID        string     `json:"patient_id"`
	MedicationName   string     `json:"medication_name"`
	ScheduleID       string     `json:"schedule_id"`
	PrescriptionID   string     `json:"prescription_id,omitempty"`
	Quantity         *int       `json:"quantity,omitempty"`
	DaysBeforeRefill int        `json:"days_before_refill"`
	LastRefillDate   string     `json:"last_refill_date"`
	NextRefillDate   string     `json:"next_refill_date"`
	ReminderSent     bool       `json:"reminder_sent"`
	ReminderSentAt   *time.Time `json:"reminder_sent_at,omitempty"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DueDate is the first calendar date on which the reminder should fire.
func (r *Reminder) DueDate() string {
	next, err := doseclock.ParseDate(r.NextRefillDate)
	if err != nil {
		return r.NextRefillDate
	}
	return next.AddDate(0, 0, -r.DaysBeforeRefill).Format(doseclock.DateLayout)
}

// IsDue reports whether today (the calendar date of now) has reached the due date of an
// active, unsent reminder.
func (r *Reminder) IsDue(now time.Time) bool {
	return r.Active && !r.ReminderSent && doseclock.DateKey(now) >= r.DueDate()
}

// State derives the phase of the reminder at now.
func (r *Reminder) State(now time.Time) Phase {
	switch {
	case !r.Active:
		return PhaseInactive
	case r.ReminderSent:
		return PhaseReminded
	case r.IsDue(now):
		return PhaseDue
	default:
		return PhaseScheduled
	}
}

// Filter selects active reminders. Empty fields do not filter.
type Filter struct {
	PatientID  string
	ScheduleID string
	UnsentOnly bool
}

// Repository persists reminders. Get and Update return apperr.NotFoundError for unknown ids.
// List only ever returns active reminders.
type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	Get(ctx context.Context, id string) (*Reminder, error)
	Update(ctx context.Context, r *Reminder) error
	List(ctx context.Context, f Filter) ([]*Reminder, error)
}
