package memory

import (
	"context"
	"sync"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/refill"
)

type RefillRepo struct {
	mu    sync.RWMutex
	rows  map[string]*refill.Reminder
	order []string
}

func NewRefillRepo() *RefillRepo {
	return &RefillRepo{rows: make(map[string]*refill.Reminder)}
}

func cloneReminder(r *refill.Reminder) *refill.Reminder {
	c := *r
	if r.Quantity != nil {
		q := *r.Quantity
		c.Quantity = &q
	}
	if r.ReminderSentAt != nil {
		t := *r.ReminderSentAt
		c.ReminderSentAt = &t
	}
	return &c
}

func (r *RefillRepo) Create(_ context.Context, rem *refill.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rem.ID] = cloneReminder(rem)
	r.order = append(r.order, rem.ID)
	return nil
}

func (r *RefillRepo) Get(_ context.Context, id string) (*refill.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rem, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("refill reminder", id)
	}
	return cloneReminder(rem), nil
}

func (r *RefillRepo) Update(_ context.Context, rem *refill.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[rem.ID]; !ok {
		return apperr.NotFound("refill reminder", rem.ID)
	}
	r.rows[rem.ID] = cloneReminder(rem)
	return nil
}

func (r *RefillRepo) List(_ context.Context, f refill.Filter) ([]*refill.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*refill.Reminder{}
	for _, id := range r.order {
		rem := r.rows[id]
		switch {
		case !rem.Active:
			continue
		case f.PatientID != "" && rem.PatientID != f.PatientID:
			continue
		case f.ScheduleID != "" && rem.ScheduleID != f.ScheduleID:
			continue
		case f.UnsentOnly && rem.ReminderSent:
			continue
		}
		out = append(out, cloneReminder(rem))
	}
	return out, nil
}
