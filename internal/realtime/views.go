// Package realtime projects notification snapshots onto UI-facing views and streams them
// to browsers over WebSocket.
package realtime

import (
	"context"
	"sync"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
)

// View folds snapshots. Implementations ignore snapshots older than the last one applied.
type View interface {
	Apply(notification.Snapshot)
}

// Subscriber is the subscription side of the notification center.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string, limit int, fn func(notification.Snapshot)) (*notification.Subscription, error)
}

type seqGate struct {
	seq     uint64
	applied bool
}

// admit reports whether seq is newer than everything seen so far and records it.
func (g *seqGate) admit(seq uint64) bool {
	if g.applied && seq <= g.seq {
		return false
	}
	g.seq, g.applied = seq, true
	return true
}

// BadgeView is the unread counter shown on the bell icon.
type BadgeView struct {
	mu     sync.RWMutex
	gate   seqGate
	unread int
}

func (b *BadgeView) Apply(s notification.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate.admit(s.Seq) {
		b.unread = s.Unread
	}
}

func (b *BadgeView) Unread() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unread
}

// PanelView is the dropdown list: the newest notifications up to a limit plus the unread
// count.
type PanelView struct {
	limit int

	mu     sync.RWMutex
	gate   seqGate
	items  []*notification.Notification
	unread int
}

// NewPanelView keeps at most limit items; limit <= 0 keeps whatever the snapshot holds.
func NewPanelView(limit int) *PanelView {
	return &PanelView{limit: limit}
}

func (p *PanelView) Apply(s notification.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.gate.admit(s.Seq) {
		return
	}
	items := s.Notifications
	if p.limit > 0 && len(items) > p.limit {
		items = items[:p.limit]
	}
	p.items = append([]*notification.Notification(nil), items...)
	p.unread = s.Unread
}

func (p *PanelView) Items() []*notification.Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*notification.Notification(nil), p.items...)
}

func (p *PanelView) Unread() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unread
}

// Bind feeds every snapshot of userID to views until ctx ends or the subscription is
// cancelled.
func Bind(ctx context.Context, center Subscriber, userID string, limit int, views ...View) (*notification.Subscription, error) {
	return center.Subscribe(ctx, userID, limit, func(s notification.Snapshot) {
		for _, v := range views {
			v.Apply(s)
		}
	})
}
