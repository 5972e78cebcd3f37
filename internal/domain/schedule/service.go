package schedule

import (
	"context"
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

// Service owns the lifecycle of schedules. Medication identity is never edited in place;
// only times and instructions change, and schedules are retired by deactivation.
type Service struct {
	repo   Repository
	clock  clock.Clock
	logger *zap.Logger
	tracer trace.Tracer
}

func NewService(repo Repository, clk clock.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		clock:  clk,
		logger: logger,
		tracer: otel.Tracer("schedule-registry"),
	}
}

// Create validates s, normalizes its times and stores it as active.
func (s *Service) Create(ctx context.Context, sch *Schedule) (*Schedule, error) {
	ctx, span := s.tracer.Start(ctx, "schedule_create",
		trace.WithAttributes(attribute.String("patient_id", sch.PatientID)))
	defer span.End()

	if err := validate(sch); err != nil {
		return nil, err
	}
	plan, err := sch.Plan()
	if err != nil {
		return nil, apperr.Validation("schedule", err.Error())
	}

	now := s.clock.Now()
	sch.ID = uuid.NewString()
	sch.Times = formatTimes(plan.Times)
	sch.Active = true
	sch.CreatedAt = now
	sch.UpdatedAt = now

	if err := s.repo.Create(ctx, sch); err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("create schedule", err)
	}

	s.logger.Info("schedule created",
		zap.String("schedule_id", sch.ID),
		zap.String("patient_id", sch.PatientID),
		zap.String("frequency", string(sch.Frequency)))
	return sch, nil
}

func validate(sch *Schedule) error {
	switch {
	case strings.TrimSpace(sch.PatientID) == "":
		return apperr.Validation("patient_id", "required")
	case strings.TrimSpace(sch.MedicationName) == "":
		return apperr.Validation("medication_name", "required")
	case !sch.Frequency.Valid():
		return apperr.Validation("frequency", "unknown frequency "+string(sch.Frequency))
	case sch.Frequency != AsNeeded && len(sch.Times) == 0:
		return apperr.Validation("times", "at least one time is required unless as-needed")
	case sch.StartDate == "":
		return apperr.Validation("start_date", "required")
	}
	return nil
}

func formatTimes(times []doseclock.TimeOfDay) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, t.String())
	}
	return out
}

func (s *Service) Get(ctx context.Context, id string) (*Schedule, error) {
	if id == "" {
		return nil, apperr.Validation("id", "required")
	}
	sch, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("get schedule", err)
	}
	return sch, nil
}

// ListActive returns a patient's active schedules, oldest first.
func (s *Service) ListActive(ctx context.Context, patientID string) ([]*Schedule, error) {
	return s.ListByOwner(ctx, ForPatient(patientID), true)
}

func (s *Service) ListByOwner(ctx context.Context, owner Owner, activeOnly bool) ([]*Schedule, error) {
	if !owner.valid() {
		return nil, apperr.Validation("owner", "patient or doctor id required")
	}
	list, err := s.repo.List(ctx, Query{Owner: owner, ActiveOnly: activeOnly})
	if err != nil {
		return nil, apperr.Dependency("list schedules", err)
	}
	if list == nil {
		list = []*Schedule{}
	}
	return list, nil
}

// Deactivate retires a schedule. Deactivating an inactive schedule is a no-op.
func (s *Service) Deactivate(ctx context.Context, id string) (*Schedule, error) {
	ctx, span := s.tracer.Start(ctx, "schedule_deactivate",
		trace.WithAttributes(attribute.String("schedule_id", id)))
	defer span.End()

	sch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sch.Active {
		return sch, nil
	}
	sch.Active = false
	sch.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, sch); err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("deactivate schedule", err)
	}
	s.logger.Info("schedule deactivated", zap.String("schedule_id", id))
	return sch, nil
}

// UpdateTimes replaces the dose times of a non as-needed schedule.
func (s *Service) UpdateTimes(ctx context.Context, id string, times []string) (*Schedule, error) {
	sch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sch.Frequency != AsNeeded && len(times) == 0 {
		return nil, apperr.Validation("times", "at least one time is required unless as-needed")
	}
	plan, err := (&Schedule{Times: times, StartDate: sch.StartDate, EndDate: sch.EndDate}).Plan()
	if err != nil {
		return nil, apperr.Validation("times", err.Error())
	}
	sch.Times = formatTimes(plan.Times)
	sch.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, sch); err != nil {
		return nil, apperr.Dependency("update schedule times", err)
	}
	return sch, nil
}

func (s *Service) UpdateInstructions(ctx context.Context, id, instructions string) (*Schedule, error) {
	sch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sch.Instructions = instructions
	sch.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, sch); err != nil {
		return nil, apperr.Dependency("update schedule instructions", err)
	}
	return sch, nil
}

// ActivePatients lists patients with at least one active schedule.
func (s *Service) ActivePatients(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ActivePatients(ctx)
	if err != nil {
		return nil, apperr.Dependency("list active patients", err)
	}
	return ids, nil
}
