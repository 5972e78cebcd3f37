package notification

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
)

// Subscription is a live snapshot feed for one user. Deliveries run on a single goroutine,
// so callbacks are strictly ordered and never overlap. Bursts of changes coalesce into one
// snapshot of the latest state.
type Subscription struct {
	center *Center
	userID string
	limit  int
	fn     func(Snapshot)

	wakeCh chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	// mu is held for the whole callback; closed is checked under it.
	mu     sync.Mutex
	closed bool
}

// Subscribe registers fn for userID. fn receives the current snapshot right away and a new
// one after every change touching the user. The feed ends when ctx is cancelled or
// Unsubscribe is called.
func (c *Center) Subscribe(ctx context.Context, userID string, limit int, fn func(Snapshot)) (*Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user_id", "required")
	}
	if fn == nil {
		return nil, apperr.Validation("callback", "required")
	}

	s := &Subscription{
		center: c,
		userID: userID,
		limit:  clampLimit(limit),
		fn:     fn,
		wakeCh: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	// register first so no change between the initial read and the first wake is lost
	c.register(s)
	initial, err := c.Snapshot(ctx, userID, s.limit)
	if err != nil {
		c.unregister(s)
		return nil, err
	}
	go s.run(ctx, initial)
	return s, nil
}

func (s *Subscription) UserID() string { return s.userID }

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe stops the feed. When it returns no callback is running and none will start.
// It is idempotent. It must not be called from inside the callback; cancel the subscribe
// context there instead.
func (s *Subscription) Unsubscribe() {
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.once.Do(func() {
		s.center.unregister(s)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stop)
	})
}

func (s *Subscription) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(ctx context.Context, initial Snapshot) {
	defer close(s.done)

	s.deliver(initial)
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.wakeCh:
		}

		snap, err := s.center.Snapshot(ctx, s.userID, s.limit)
		if err != nil {
			if ctx.Err() == nil {
				s.center.logger.Error("subscription snapshot failed",
					zap.String("user_id", s.userID), zap.Error(err))
			}
			continue
		}
		s.deliver(snap)
	}
}

func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.center.logger.Error("subscription callback panicked",
				zap.String("user_id", s.userID), zap.Any("panic", r))
		}
	}()
	s.fn(snap)
}
