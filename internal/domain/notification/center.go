package notification

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Center is the only writer of notifications and the hub of live subscriptions.
type Center struct {
	repo        Repository
	clock       clock.Clock
	logger      *zap.Logger
	tracer      trace.Tracer
	instruments Instruments

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
	seq  atomic.Uint64
}

func NewCenter(repo Repository, clk clock.Clock, logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{
		repo:        repo,
		clock:       clk,
		logger:      logger,
		tracer:      otel.Tracer("notification-center"),
		instruments: nopInstruments{},
		subs:        make(map[string]map[*Subscription]struct{}),
	}
}

// Instrument attaches counters. Call before serving traffic.
func (c *Center) Instrument(in Instruments) {
	if in != nil {
		c.instruments = in
	}
}

// Create stores a new unread notification. Drafts are not de-duplicated. Role broadcasts
// are stored as a single record addressed to the role.
func (c *Center) Create(ctx context.Context, d Draft) (*Notification, error) {
	ctx, span := c.tracer.Start(ctx, "notification_create",
		trace.WithAttributes(attribute.String("type", string(d.Type))))
	defer span.End()

	if d.Priority == "" {
		d.Priority = PriorityNormal
	}
	switch {
	case strings.TrimSpace(d.Recipient.UserID()) == "" && strings.TrimSpace(d.Recipient.Role()) == "":
		return nil, apperr.Validation("recipient", "user id or role required")
	case !d.Type.Valid():
		return nil, apperr.Validation("type", "unknown notification type "+string(d.Type))
	case !d.Priority.Valid():
		return nil, apperr.Validation("priority", "unknown priority "+string(d.Priority))
	case strings.TrimSpace(d.Title) == "":
		return nil, apperr.Validation("title", "required")
	case strings.TrimSpace(d.Message) == "":
		return nil, apperr.Validation("message", "required")
	}

	n := &Notification{
		ID:            uuid.NewString(),
		UserID:        d.Recipient.UserID(),
		RecipientRole: d.Recipient.Role(),
		Type:          d.Type,
		Title:         d.Title,
		Message:       d.Message,
		Priority:      d.Priority,
		Data:          d.Data,
		ActionURL:     d.ActionURL,
		CreatedAt:     c.clock.Now(),
	}
	if err := c.repo.Create(ctx, n); err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("create notification", err)
	}
	c.instruments.NotificationCreated(string(n.Type))
	c.logger.Debug("notification created",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("role", n.RecipientRole),
		zap.String("type", string(n.Type)))
	c.changed(n.UserID)
	return n, nil
}

// Get returns the notification even when it has been soft-deleted.
func (c *Center) Get(ctx context.Context, id string) (*Notification, error) {
	if id == "" {
		return nil, apperr.Validation("id", "required")
	}
	n, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("get notification", err)
	}
	return n, nil
}

// List returns the user's non-deleted notifications, newest first.
func (c *Center) List(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user_id", "required")
	}
	list, err := c.repo.ListByUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, apperr.Dependency("list notifications", err)
	}
	if list == nil {
		list = []*Notification{}
	}
	return list, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

// UnreadCount counts unread, non-deleted notifications.
func (c *Center) UnreadCount(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, apperr.Validation("user_id", "required")
	}
	n, err := c.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperr.Dependency("count unread notifications", err)
	}
	return n, nil
}

func (c *Center) MarkRead(ctx context.Context, id string) (*Notification, error) {
	return c.setRead(ctx, id, true)
}

func (c *Center) MarkUnread(ctx context.Context, id string) (*Notification, error) {
	return c.setRead(ctx, id, false)
}

func (c *Center) setRead(ctx context.Context, id string, read bool) (*Notification, error) {
	if id == "" {
		return nil, apperr.Validation("id", "required")
	}
	n, err := c.repo.SetRead(ctx, id, read, c.clock.Now())
	if err != nil {
		return nil, apperr.Dependency("update notification read state", err)
	}
	if read {
		c.instruments.NotificationsRead(1)
	}
	c.changed(n.UserID)
	return n, nil
}

// MarkAllRead marks every unread notification of the user with one update each. It keeps
// going past failed items and reports them in the result. Subscribers see one snapshot
// after the batch.
func (c *Center) MarkAllRead(ctx context.Context, userID string) (*BatchResult, error) {
	ctx, span := c.tracer.Start(ctx, "notification_mark_all_read",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user_id", "required")
	}
	ids, err := c.repo.ListUnreadIDs(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Dependency("list unread notifications", err)
	}

	res := &BatchResult{Failed: []ItemFailure{}}
	now := c.clock.Now()
	for _, id := range ids {
		if _, err := c.repo.SetRead(ctx, id, true, now); err != nil {
			c.logger.Error("mark read failed",
				zap.String("notification_id", id),
				zap.String("user_id", userID),
				zap.Error(err))
			res.Failed = append(res.Failed, ItemFailure{ID: id, Error: err.Error()})
			continue
		}
		res.Succeeded++
	}
	span.SetAttributes(
		attribute.Int("succeeded", res.Succeeded),
		attribute.Int("failed", len(res.Failed)))
	c.instruments.NotificationsRead(res.Succeeded)
	if res.Succeeded > 0 {
		c.changed(userID)
	}
	return res, nil
}

// Delete flags the notification as deleted. The record is kept.
func (c *Center) Delete(ctx context.Context, id string) (*Notification, error) {
	if id == "" {
		return nil, apperr.Validation("id", "required")
	}
	n, err := c.repo.SoftDelete(ctx, id, c.clock.Now())
	if err != nil {
		return nil, apperr.Dependency("delete notification", err)
	}
	c.changed(n.UserID)
	return n, nil
}

// Refresh wakes the user's subscribers after a change made elsewhere, for example by
// another process whose change event arrived over the stream.
func (c *Center) Refresh(userID string) {
	c.changed(userID)
}

func (c *Center) changed(userID string) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subs[userID] {
		sub.wake()
	}
}

// Snapshot reads the current state a subscriber of userID would receive.
func (c *Center) Snapshot(ctx context.Context, userID string, limit int) (Snapshot, error) {
	seq := c.seq.Add(1)
	list, err := c.List(ctx, userID, limit)
	if err != nil {
		return Snapshot{}, err
	}
	unread, err := c.UnreadCount(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		UserID:        userID,
		Notifications: list,
		Unread:        unread,
		Seq:           seq,
		At:            c.clock.Now(),
	}, nil
}

// Subscribers counts live subscriptions for userID.
func (c *Center) Subscribers(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[userID])
}

func (c *Center) register(s *Subscription) {
	c.mu.Lock()
	set, ok := c.subs[s.userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		c.subs[s.userID] = set
	}
	set[s] = struct{}{}
	c.mu.Unlock()
	c.instruments.SubscriptionOpened()
}

func (c *Center) unregister(s *Subscription) {
	c.mu.Lock()
	if set, ok := c.subs[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(c.subs, s.userID)
		}
	}
	c.mu.Unlock()
	c.instruments.SubscriptionClosed()
}
