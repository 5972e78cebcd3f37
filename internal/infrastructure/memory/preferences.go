package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/settings"
)

type PreferenceRepo struct {
	mu    sync.RWMutex
	rows  map[string]settings.Preferences
	reads atomic.Int64
}

func NewPreferenceRepo() *PreferenceRepo {
	return &PreferenceRepo{rows: make(map[string]settings.Preferences)}
}

func (r *PreferenceRepo) Get(_ context.Context, userID string) (*settings.Preferences, error) {
	r.reads.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.rows[userID]
	if !ok {
		return nil, apperr.NotFound("preferences", userID)
	}
	return &p, nil
}

func (r *PreferenceRepo) Upsert(_ context.Context, p *settings.Preferences) error {
	r.mu.Lock()
	r.rows[p.UserID] = *p
	r.mu.Unlock()
	return nil
}

// Reads counts Get calls, letting tests observe cache hits.
func (r *PreferenceRepo) Reads() int64 {
	return r.reads.Load()
}
