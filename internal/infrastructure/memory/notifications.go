package memory

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
)

var errInjected = errors.New("memory: injected failure")

type NotificationRepo struct {
	mu    sync.RWMutex
	rows  map[string]*notification.Notification
	order []string

	// FailSetRead, when set, makes SetRead fail for the ids it returns true for.
	FailSetRead func(id string) bool
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{rows: make(map[string]*notification.Notification)}
}

func cloneNotification(n *notification.Notification) *notification.Notification {
	c := *n
	c.Data = maps.Clone(n.Data)
	return &c
}

func (r *NotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[n.ID] = cloneNotification(n)
	r.order = append(r.order, n.ID)
	return nil
}

func (r *NotificationRepo) Get(_ context.Context, id string) (*notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("notification", id)
	}
	return cloneNotification(n), nil
}

// ListByUser walks insertion order backwards; ties on CreatedAt keep the later insert first.
func (r *NotificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]*notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*notification.Notification{}
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		n := r.rows[r.order[i]]
		if n.UserID != userID || n.Deleted {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	return out, nil
}

func (r *NotificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.rows {
		if n.UserID == userID && !n.Read && !n.Deleted {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) ListUnreadIDs(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := []string{}
	for _, id := range r.order {
		n := r.rows[id]
		if n.UserID == userID && !n.Read && !n.Deleted {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *NotificationRepo) SetRead(_ context.Context, id string, read bool, at time.Time) (*notification.Notification, error) {
	if r.FailSetRead != nil && r.FailSetRead(id) {
		return nil, errInjected
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("notification", id)
	}
	switch {
	case read && !n.Read:
		n.Read = true
		n.ReadAt = &at
	case !read:
		n.Read = false
		n.ReadAt = nil
	}
	return cloneNotification(n), nil
}

func (r *NotificationRepo) SoftDelete(_ context.Context, id string, at time.Time) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("notification", id)
	}
	if !n.Deleted {
		n.Deleted = true
		n.DeletedAt = &at
	}
	return cloneNotification(n), nil
}
