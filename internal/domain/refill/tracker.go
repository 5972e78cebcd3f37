package refill

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/doseclock"
)

type Tracker struct {
	repo   Repository
	clock  clock.Clock
	logger *zap.Logger
	tracer trace.Tracer
}

func NewTracker(repo Repository, clk clock.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		repo:   repo,
		clock:  clk,
		logger: logger,
		tracer: otel.Tracer("refill-tracker"),
	}
}

// Create stores a new active, unsent reminder. LastRefillDate defaults to today and
// NextRefillDate must fall after it.
func (t *Tracker) Create(ctx context.Context, r *Reminder) (*Reminder, error) {
	ctx, span := t.tracer.Start(ctx, "refill_create",
		trace.WithAttributes(attribute.String("patient_id", r.PatientID)))
	defer span.End()

	now := t.clock.Now()
	switch {
	case strings.TrimSpace(r.PatientID) == "":
		return nil, apperr.Validation("patient_id", "required")
	case strings.TrimSpace(r.ScheduleID) == "":
		return nil, apperr.Validation("schedule_id", "required")
	case strings.TrimSpace(r.MedicationName) == "":
		return nil, apperr.Validation("medication_name", "required")
	case r.DaysBeforeRefill < 0:
		return nil, apperr.Validation("days_before_refill", "must not be negative")
	case r.Quantity != nil && *r.Quantity < 0:
		return nil, apperr.Validation("quantity", "must not be negative")
	}
	if r.LastRefillDate == "" {
		r.LastRefillDate = doseclock.DateKey(now)
	}
	if _, err := doseclock.ParseDate(r.LastRefillDate); err != nil {
		return nil, apperr.Validation("last_refill_date", err.Error())
	}
	if _, err := doseclock.ParseDate(r.NextRefillDate); err != nil {
		return nil, apperr.Validation("next_refill_date", err.Error())
	}
	if r.NextRefillDate <= r.LastRefillDate {
		return nil, apperr.Validation("next_refill_date", "must be after last_refill_date")
	}

	r.ID = uuid.NewString()
	r.ReminderSent = false
	r.ReminderSentAt = nil
	r.Active = true
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := t.repo.Create(ctx, r); err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("create refill reminder", err)
	}
	t.logger.Info("refill reminder created",
		zap.String("reminder_id", r.ID),
		zap.String("patient_id", r.PatientID),
		zap.String("next_refill_date", r.NextRefillDate))
	return r, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (*Reminder, error) {
	if id == "" {
		return nil, apperr.Validation("id", "required")
	}
	r, err := t.repo.Get(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("get refill reminder", err)
	}
	return r, nil
}

// Upcoming returns active reminders whose next refill date is in [today, today+withinDays],
// inclusive on both calendar dates. withinDays == 0 means today only.
func (t *Tracker) Upcoming(ctx context.Context, patientID string, withinDays int) ([]*Reminder, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, apperr.Validation("patient_id", "required")
	}
	if withinDays < 0 {
		return nil, apperr.Validation("days", "must not be negative")
	}
	now := t.clock.Now()
	from := doseclock.DateKey(now)
	to := doseclock.DateKey(now.AddDate(0, 0, withinDays))

	list, err := t.repo.List(ctx, Filter{PatientID: patientID})
	if err != nil {
		return nil, apperr.Dependency("list refill reminders", err)
	}
	out := []*Reminder{}
	for _, r := range list {
		if r.NextRefillDate >= from && r.NextRefillDate <= to {
			out = append(out, r)
		}
	}
	sortByNext(out)
	return out, nil
}

// Due returns every active, unsent reminder whose lead window has opened.
func (t *Tracker) Due(ctx context.Context) ([]*Reminder, error) {
	list, err := t.repo.List(ctx, Filter{UnsentOnly: true})
	if err != nil {
		return nil, apperr.Dependency("list unsent refill reminders", err)
	}
	now := t.clock.Now()
	out := []*Reminder{}
	for _, r := range list {
		if r.IsDue(now) {
			out = append(out, r)
		}
	}
	sortByNext(out)
	return out, nil
}

func sortByNext(list []*Reminder) {
	slices.SortStableFunc(list, func(a, b *Reminder) int {
		return strings.Compare(a.NextRefillDate, b.NextRefillDate)
	})
}

// MarkSent records that the reminder went out. A second call keeps the first timestamp.
func (t *Tracker) MarkSent(ctx context.Context, id string) (*Reminder, error) {
	r, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.ReminderSent {
		return r, nil
	}
	now := t.clock.Now()
	r.ReminderSent = true
	r.ReminderSentAt = &now
	r.UpdatedAt = now
	if err := t.repo.Update(ctx, r); err != nil {
		return nil, apperr.Dependency("mark refill reminder sent", err)
	}
	return r, nil
}

// Advance records a performed refill and starts the next cycle: the last refill date
// becomes today, the next one becomes next and the sent flag is cleared.
func (t *Tracker) Advance(ctx context.Context, id, next string, quantity *int) (*Reminder, error) {
	ctx, span := t.tracer.Start(ctx, "refill_advance",
		trace.WithAttributes(attribute.String("reminder_id", id)))
	defer span.End()

	if _, err := doseclock.ParseDate(next); err != nil {
		return nil, apperr.Validation("next_refill_date", err.Error())
	}
	if quantity != nil && *quantity < 0 {
		return nil, apperr.Validation("quantity", "must not be negative")
	}
	r, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Active {
		return nil, apperr.Validation("id", "refill reminder is inactive")
	}
	now := t.clock.Now()
	today := doseclock.DateKey(now)
	if next <= today {
		return nil, apperr.Validation("next_refill_date", "must be after today")
	}

	r.LastRefillDate = today
	r.NextRefillDate = next
	r.ReminderSent = false
	r.ReminderSentAt = nil
	if quantity != nil {
		q := *quantity
		r.Quantity = &q
	}
	r.UpdatedAt = now
	if err := t.repo.Update(ctx, r); err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("advance refill reminder", err)
	}
	t.logger.Info("refill cycle advanced",
		zap.String("reminder_id", r.ID),
		zap.String("next_refill_date", next))
	return r, nil
}

// Deactivate soft-deletes the reminder. It is idempotent.
func (t *Tracker) Deactivate(ctx context.Context, id string) (*Reminder, error) {
	r, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Active {
		return r, nil
	}
	r.Active = false
	r.UpdatedAt = t.clock.Now()
	if err := t.repo.Update(ctx, r); err != nil {
		return nil, apperr.Dependency("deactivate refill reminder", err)
	}
	return r, nil
}

// DeactivateForSchedule retires every active reminder of a schedule and reports how many
// were changed.
func (t *Tracker) DeactivateForSchedule(ctx context.Context, scheduleID string) (int, error) {
	if scheduleID == "" {
		return 0, apperr.Validation("schedule_id", "required")
	}
	list, err := t.repo.List(ctx, Filter{ScheduleID: scheduleID})
	if err != nil {
		return 0, apperr.Dependency("list refill reminders", err)
	}
	n := 0
	for _, r := range list {
		if _, err := t.Deactivate(ctx, r.ID); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		t.logger.Info("refill reminders deactivated with schedule",
			zap.String("schedule_id", scheduleID), zap.Int("count", n))
	}
	return n, nil
}
