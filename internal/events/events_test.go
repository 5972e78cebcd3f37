package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/events"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/memory"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/idempotency"
)

func TestTranslateKinds(t *testing.T) {
	tests := []struct {
		kind     string
		typ      notification.Type
		priority notification.Priority
		data     map[string]any
		action   string
	}{
		{"payment.succeeded", notification.TypePaymentSuccess, notification.PriorityNormal, map[string]any{"payment_id": "pay-1"}, "/payments/pay-1"},
		{"payment.failed", notification.TypePaymentFailed, notification.PriorityHigh, nil, ""},
		{"sos.triggered", notification.TypeSOSAlert, notification.PriorityUrgent, map[string]any{"sos_id": "sos-7"}, "/sos/sos-7"},
		{"appointment.cancelled", notification.TypeAppointmentCancelled, notification.PriorityHigh, map[string]any{"appointment_id": "a-3"}, "/appointments/a-3"},
		{"article.published", notification.TypeArticlePublished, notification.PriorityLow, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			d, err := events.Translate(events.DomainEvent{ID: "e-1", Kind: tt.kind, UserID: "u-1", Data: tt.data})
			require.NoError(t, err)
			assert.Equal(t, tt.typ, d.Type)
			assert.Equal(t, tt.priority, d.Priority)
			assert.Equal(t, tt.action, d.ActionURL)
			assert.NotEmpty(t, d.Title)
			assert.NotEmpty(t, d.Message)
			assert.Equal(t, "u-1", d.Recipient.UserID())
			assert.Equal(t, "e-1", d.Data["event_id"])
		})
	}
}

func TestTranslateEveryKindIsValid(t *testing.T) {
	for _, kind := range events.Kinds() {
		d, err := events.Translate(events.DomainEvent{ID: "e", Kind: kind, Role: "patient", Message: "m"})
		require.NoError(t, err, kind)
		assert.True(t, d.Type.Valid(), kind)
		assert.True(t, d.Priority.Valid(), kind)
		assert.True(t, d.Recipient.IsRole())
	}
}

func TestTranslateOverridesAndErrors(t *testing.T) {
	d, err := events.Translate(events.DomainEvent{ID: "e", Kind: "order.updated", UserID: "u", Title: "Shipped", Message: "On its way"})
	require.NoError(t, err)
	assert.Equal(t, "Shipped", d.Title)
	assert.Equal(t, "On its way", d.Message)

	_, err = events.Translate(events.DomainEvent{ID: "e", Kind: "lab.result", UserID: "u"})
	assert.True(t, apperr.IsValidation(err))

	_, err = events.Translate(events.DomainEvent{ID: "e", Kind: "order.updated"})
	assert.True(t, apperr.IsValidation(err), "no recipient")

	_, err = events.Translate(events.DomainEvent{ID: "e", Kind: "system.announcement", Role: "doctor"})
	assert.True(t, apperr.IsValidation(err), "announcements carry their own message")
}

type outcomes map[string]int

func (o outcomes) EventConsumed(outcome string) { o[outcome]++ }

type flakyNotifier struct {
	next  events.Notifier
	fails int
}

func (f *flakyNotifier) Create(ctx context.Context, d notification.Draft) (*notification.Notification, error) {
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("connection reset")
	}
	return f.next.Create(ctx, d)
}

func payload(t *testing.T, e events.DomainEvent) []byte {
	t.Helper()
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	return raw
}

func newCenter() *notification.Center {
	return notification.NewCenter(memory.NewNotificationRepo(), clock.NewManaged(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), nil)
}

func TestIngestorDeduplicatesRedelivery(t *testing.T) {
	center := newCenter()
	seen := outcomes{}
	ing := events.NewIngestor(idempotency.NewMemory(), center, seen, nil)
	ctx := context.Background()
	raw := payload(t, events.DomainEvent{ID: "evt-1", Kind: "payment.succeeded", UserID: "u-1", Data: map[string]any{"payment_id": "p-9"}})

	require.NoError(t, ing.Handle(ctx, raw))
	require.NoError(t, ing.Handle(ctx, raw))

	list, err := center.List(ctx, "u-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, notification.TypePaymentSuccess, list[0].Type)
	assert.Equal(t, "/payments/p-9", list[0].ActionURL)
	assert.Equal(t, outcomes{events.OutcomeCreated: 1, events.OutcomeDuplicate: 1}, seen)
}

func TestIngestorRetriesTransientFailure(t *testing.T) {
	center := newCenter()
	seen := outcomes{}
	ing := events.NewIngestor(idempotency.NewMemory(), &flakyNotifier{next: center, fails: 1}, seen, nil)
	ctx := context.Background()
	raw := payload(t, events.DomainEvent{ID: "evt-2", Kind: "order.updated", UserID: "u-1"})

	err := ing.Handle(ctx, raw)
	require.Error(t, err)
	assert.False(t, apperr.IsValidation(err))

	require.NoError(t, ing.Handle(ctx, raw))
	count, err := center.UnreadCount(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, seen[events.OutcomeFailed])
	assert.Equal(t, 1, seen[events.OutcomeCreated])
}

func TestIngestorRejectsPermanently(t *testing.T) {
	ing := events.NewIngestor(idempotency.NewMemory(), newCenter(), nil, nil)
	ctx := context.Background()

	assert.True(t, apperr.IsValidation(ing.Handle(ctx, []byte("{not json"))))
	assert.True(t, apperr.IsValidation(ing.Handle(ctx, payload(t, events.DomainEvent{Kind: "order.updated"}))))

	raw := payload(t, events.DomainEvent{ID: "evt-3", Kind: "lab.result", UserID: "u-1"})
	assert.True(t, apperr.IsValidation(ing.Handle(ctx, raw)))
	assert.NoError(t, ing.Handle(ctx, raw), "a redelivered poison event is acknowledged")
}
