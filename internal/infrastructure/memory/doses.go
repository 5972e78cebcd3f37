package memory

import (
	"context"
	"sync"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/adherence"
)

type DoseRepo struct {
	mu   sync.RWMutex
	rows map[adherence.Key]*adherence.DoseRecord
}

func NewDoseRepo() *DoseRepo {
	return &DoseRepo{rows: make(map[adherence.Key]*adherence.DoseRecord)}
}

// Upsert applies rec only when the stored record is not newer. The stored record keeps
// its original id.
func (r *DoseRepo) Upsert(_ context.Context, rec *adherence.DoseRecord) (*adherence.DoseRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rec.Key()
	cur, ok := r.rows[key]
	if ok && cur.RecordedAt.After(rec.RecordedAt) {
		c := *cur
		return &c, false, nil
	}
	next := *rec
	if ok {
		next.ID = cur.ID
	}
	r.rows[key] = &next
	out := next
	return &out, true, nil
}

func (r *DoseRepo) ListByPatient(_ context.Context, patientID, fromDate, toDate string) ([]*adherence.DoseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*adherence.DoseRecord{}
	for _, rec := range r.rows {
		if rec.PatientID != patientID || rec.DoseDate < fromDate || rec.DoseDate > toDate {
			continue
		}
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

// Len counts stored records.
func (r *DoseRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
