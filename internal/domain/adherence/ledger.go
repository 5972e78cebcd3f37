package adherence

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/doseclock"
)

const (
	DefaultLookbackDays = 30
	DefaultWithinHours  = 24
)

// Ledger is the only writer of dose records.
type Ledger struct {
	records   Repository
	schedules Schedules
	clock     clock.Clock
	logger    *zap.Logger
	tracer    trace.Tracer
	listener  func(*DoseRecord)
}

func NewLedger(records Repository, schedules Schedules, clk clock.Clock, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		records:   records,
		schedules: schedules,
		clock:     clk,
		logger:    logger,
		tracer:    otel.Tracer("adherence-ledger"),
	}
}

// OnRecord registers fn to observe every applied write. Call before serving traffic.
func (l *Ledger) OnRecord(fn func(*DoseRecord)) {
	l.listener = fn
}

// MarkTaken records the dose as taken. Repeating the call leaves one record in state taken.
func (l *Ledger) MarkTaken(ctx context.Context, m Mark) (*DoseRecord, error) {
	return l.mark(ctx, m, StateTaken)
}

// MarkSkipped records the dose as skipped; Note carries the reason.
func (l *Ledger) MarkSkipped(ctx context.Context, m Mark) (*DoseRecord, error) {
	return l.mark(ctx, m, StateSkipped)
}

func (l *Ledger) mark(ctx context.Context, m Mark, state State) (*DoseRecord, error) {
	ctx, span := l.tracer.Start(ctx, "adherence_mark",
		trace.WithAttributes(
			attribute.String("schedule_id", m.ScheduleID),
			attribute.String("state", string(state)),
		))
	defer span.End()

	now := l.clock.Now()
	rec, err := l.validateMark(ctx, m, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rec.ID = uuid.NewString()
	rec.State = state
	rec.RecordedAt = now

	stored, applied, err := l.records.Upsert(ctx, rec)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("record dose", err)
	}
	if !applied {
		l.logger.Info("dose write superseded by newer record",
			zap.String("schedule_id", rec.ScheduleID),
			zap.String("dose_date", rec.DoseDate),
			zap.String("scheduled_time", rec.ScheduledTime),
			zap.Time("stored_recorded_at", stored.RecordedAt))
		return stored, nil
	}
	if l.listener != nil {
		l.listener(stored)
	}
	l.logger.Debug("dose recorded",
		zap.String("schedule_id", stored.ScheduleID),
		zap.String("patient_id", stored.PatientID),
		zap.String("state", string(stored.State)))
	return stored, nil
}

func (l *Ledger) validateMark(ctx context.Context, m Mark, now time.Time) (*DoseRecord, error) {
	switch {
	case strings.TrimSpace(m.PatientID) == "":
		return nil, apperr.Validation("patient_id", "required")
	case strings.TrimSpace(m.ScheduleID) == "":
		return nil, apperr.Validation("schedule_id", "required")
	case m.ScheduledTime == "":
		return nil, apperr.Validation("scheduled_time", "required")
	}
	tod, err := doseclock.ParseTimeOfDay(m.ScheduledTime)
	if err != nil {
		return nil, apperr.Validation("scheduled_time", err.Error())
	}
	date := m.Date
	if date == "" {
		date = doseclock.DateKey(now)
	}
	day, err := doseclock.ParseDate(date)
	if err != nil {
		return nil, apperr.Validation("date", err.Error())
	}

	sch, err := l.schedules.Get(ctx, m.ScheduleID)
	if err != nil {
		return nil, err
	}
	if sch.PatientID != m.PatientID {
		return nil, apperr.Validation("schedule_id", "schedule belongs to another patient")
	}
	if !sch.Active {
		return nil, apperr.Validation("schedule_id", "schedule is inactive")
	}
	plan, err := sch.Plan()
	if err != nil {
		return nil, apperr.Validation("schedule_id", err.Error())
	}
	if !plan.AsNeeded && !plan.Contains(tod) {
		return nil, apperr.Validation("scheduled_time", tod.String()+" is not a time of this schedule")
	}
	if doseclock.ActiveDays(plan, day, day) == 0 {
		return nil, apperr.Validation("date", "schedule is not active on "+date)
	}

	return &DoseRecord{
		ScheduleID:    sch.ID,
		PatientID:     sch.PatientID,
		DoseDate:      date,
		ScheduledTime: tod.String(),
		Note:          m.Note,
	}, nil
}

// UpcomingDoses lists the not-yet-taken doses of a patient's active schedules whose instant
// falls in [now, now+withinHours), in chronological order. Doses without a record are
// reported as pending.
func (l *Ledger) UpcomingDoses(ctx context.Context, patientID string, withinHours int) ([]UpcomingDose, error) {
	ctx, span := l.tracer.Start(ctx, "adherence_upcoming",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	if strings.TrimSpace(patientID) == "" {
		return nil, apperr.Validation("patient_id", "required")
	}
	if withinHours <= 0 {
		withinHours = DefaultWithinHours
	}
	now := l.clock.Now()
	end := now.Add(time.Duration(withinHours) * time.Hour)

	schedules, err := l.schedules.ListActive(ctx, patientID)
	if err != nil {
		return nil, err
	}
	recorded, err := l.index(ctx, patientID, doseclock.DateKey(now), doseclock.DateKey(end))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := []UpcomingDose{}
	for _, sch := range schedules {
		plan, err := sch.Plan()
		if err != nil {
			l.logger.Warn("skipping schedule with invalid plan",
				zap.String("schedule_id", sch.ID), zap.Error(err))
			continue
		}
		for dose := range doseclock.ExpectedDoses(plan, now, now, end) {
			up := UpcomingDose{
				ScheduleID:     sch.ID,
				MedicationName: sch.MedicationName,
				Dosage:         sch.Dosage,
				Date:           dose.Date(),
				ScheduledTime:  dose.Time.String(),
				At:             dose.At,
				State:          StatePending,
			}
			if rec, ok := recorded[Key{ScheduleID: sch.ID, Date: up.Date, Time: up.ScheduledTime}]; ok {
				if rec.State == StateTaken {
					continue
				}
				up.State = rec.State
				up.Note = rec.Note
			}
			out = append(out, up)
		}
	}

	slices.SortStableFunc(out, func(a, b UpcomingDose) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return strings.Compare(a.MedicationName, b.MedicationName)
	})
	return out, nil
}

func (l *Ledger) index(ctx context.Context, patientID, from, to string) (map[Key]*DoseRecord, error) {
	recs, err := l.records.ListByPatient(ctx, patientID, from, to)
	if err != nil {
		return nil, apperr.Dependency("list dose records", err)
	}
	idx := make(map[Key]*DoseRecord, len(recs))
	for _, r := range recs {
		idx[r.Key()] = r
	}
	return idx, nil
}

// Stats computes the adherence window over [today-lookbackDays, today] for the patient's
// active schedules. Doses later today count toward the total only once recorded.
func (l *Ledger) Stats(ctx context.Context, patientID string, lookbackDays int) (*Window, error) {
	ctx, span := l.tracer.Start(ctx, "adherence_stats",
		trace.WithAttributes(attribute.String("patient_id", patientID)))
	defer span.End()

	if strings.TrimSpace(patientID) == "" {
		return nil, apperr.Validation("patient_id", "required")
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	now := l.clock.Now()
	from := now.AddDate(0, 0, -lookbackDays)
	w := &Window{
		PatientID:    patientID,
		LookbackDays: lookbackDays,
		From:         doseclock.DateKey(from),
		To:           doseclock.DateKey(now),
	}

	schedules, err := l.schedules.ListActive(ctx, patientID)
	if err != nil {
		return nil, err
	}
	recs, err := l.records.ListByPatient(ctx, patientID, w.From, w.To)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("list dose records", err)
	}
	recorded := make(map[Key]bool, len(recs))
	for _, r := range recs {
		recorded[r.Key()] = true
	}

	// Later doses today are not expected yet unless the patient already recorded them.
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	plans := make(map[string]doseclock.Plan, len(schedules))
	for _, sch := range schedules {
		plan, err := sch.Plan()
		if err != nil || plan.AsNeeded {
			continue
		}
		plans[sch.ID] = plan
		w.TotalDoses += doseclock.ExpectedCount(plan, from, now)
		for dose := range doseclock.ExpectedDoses(plan, now, now, midnight) {
			if dose.At.After(now) && !recorded[Key{ScheduleID: sch.ID, Date: dose.Date(), Time: dose.Time.String()}] {
				w.TotalDoses--
			}
		}
	}

	for _, r := range recs {
		plan, ok := plans[r.ScheduleID]
		if !ok {
			continue
		}
		tod, err := doseclock.ParseTimeOfDay(r.ScheduledTime)
		if err != nil || !plan.Contains(tod) {
			continue
		}
		switch r.State {
		case StateTaken:
			w.TakenDoses++
		case StateSkipped:
			w.SkippedDoses++
		}
	}
	w.AdherenceRate = Rate(w.TakenDoses, w.TotalDoses)
	return w, nil
}

// Rate is taken/total as a percentage rounded to two decimals, clamped to [0, 100].
func Rate(taken, total int) float64 {
	if total <= 0 || taken <= 0 {
		return 0
	}
	r := math.Round(float64(taken)/float64(total)*100*100) / 100
	return math.Min(r, 100)
}
