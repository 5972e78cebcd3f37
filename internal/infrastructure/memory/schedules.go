// Package memory provides mutex-guarded, in-process repositories. They back the test
// suites and the STORE=memory development mode. Records are copied on the way in and out.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/schedule"
)

type ScheduleRepo struct {
	mu    sync.RWMutex
	rows  map[string]*schedule.Schedule
	order []string
}

func NewScheduleRepo() *ScheduleRepo {
	return &ScheduleRepo{rows: make(map[string]*schedule.Schedule)}
}

func cloneSchedule(s *schedule.Schedule) *schedule.Schedule {
	c := *s
	c.Times = slices.Clone(s.Times)
	return &c
}

func (r *ScheduleRepo) Create(_ context.Context, s *schedule.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = cloneSchedule(s)
	r.order = append(r.order, s.ID)
	return nil
}

func (r *ScheduleRepo) Get(_ context.Context, id string) (*schedule.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("schedule", id)
	}
	return cloneSchedule(s), nil
}

// List walks insertion order, which is creation order.
func (r *ScheduleRepo) List(_ context.Context, q schedule.Query) ([]*schedule.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*schedule.Schedule{}
	for _, id := range r.order {
		s := r.rows[id]
		if q.ActiveOnly && !s.Active {
			continue
		}
		if !q.Owner.Matches(s) {
			continue
		}
		out = append(out, cloneSchedule(s))
	}
	return out, nil
}

func (r *ScheduleRepo) Update(_ context.Context, s *schedule.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.ID]; !ok {
		return apperr.NotFound("schedule", s.ID)
	}
	r.rows[s.ID] = cloneSchedule(s)
	return nil
}

func (r *ScheduleRepo) ActivePatients(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	out := []string{}
	for _, id := range r.order {
		s := r.rows[id]
		if s.Active && !seen[s.PatientID] {
			seen[s.PatientID] = true
			out = append(out, s.PatientID)
		}
	}
	return out, nil
}
