package realtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/memory"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/realtime"
)

func snap(seq uint64, unread int, titles ...string) notification.Snapshot {
	s := notification.Snapshot{Seq: seq, Unread: unread}
	for _, t := range titles {
		s.Notifications = append(s.Notifications, &notification.Notification{Title: t})
	}
	return s
}

func TestBadgeIgnoresStaleSnapshots(t *testing.T) {
	var b realtime.BadgeView
	b.Apply(snap(2, 5))
	b.Apply(snap(1, 9))
	assert.Equal(t, 5, b.Unread())

	b.Apply(snap(3, 0))
	assert.Equal(t, 0, b.Unread())
	b.Apply(snap(3, 7))
	assert.Equal(t, 0, b.Unread(), "equal seq is not newer")
}

func TestPanelTruncatesAndCopies(t *testing.T) {
	p := realtime.NewPanelView(2)
	p.Apply(snap(1, 3, "c", "b", "a"))

	items := p.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].Title)
	assert.Equal(t, 3, p.Unread())

	p.Apply(snap(0, 0))
	assert.Len(t, p.Items(), 2)
}

func newCenter() (*notification.Center, *clock.Managed) {
	clk := clock.NewManaged(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	return notification.NewCenter(memory.NewNotificationRepo(), clk, nil), clk
}

func create(t *testing.T, c *notification.Center, user, title string) *notification.Notification {
	t.Helper()
	n, err := c.Create(context.Background(), notification.Draft{
		Recipient: notification.ToUser(user),
		Type:      notification.TypeOrderUpdate,
		Title:     title,
		Message:   "order shipped",
	})
	require.NoError(t, err)
	return n
}

func TestBindKeepsViewsConsistent(t *testing.T) {
	c, _ := newCenter()
	badge := &realtime.BadgeView{}
	panel := realtime.NewPanelView(10)

	sub, err := realtime.Bind(context.Background(), c, "u-1", 10, badge, panel)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	create(t, c, "u-1", "first")
	second := create(t, c, "u-1", "second")
	_, err = c.MarkRead(context.Background(), second.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return badge.Unread() == 1 && len(panel.Items()) == 2 && panel.Unread() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "second", panel.Items()[0].Title)
}

func TestStreamWritesSnapshots(t *testing.T) {
	c, _ := newCenter()
	create(t, c, "u-1", "hello")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = realtime.Stream(w, r, c, "u-1", 10, nil)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	var first notification.Snapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "u-1", first.UserID)
	assert.Equal(t, 1, first.Unread)

	create(t, c, "u-1", "again")
	var next notification.Snapshot
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, 2, next.Unread)
	assert.Greater(t, next.Seq, first.Seq)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return c.Subscribers("u-1") == 0 }, 2*time.Second, 5*time.Millisecond)
}
