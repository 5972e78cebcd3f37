package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/metrics"
)

var _ notification.Instruments = (*metrics.Metrics)(nil)

func TestCountersRecord(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.NotificationCreated("new_message")
	m.NotificationCreated("new_message")
	m.NotificationsRead(3)
	m.NotificationsRead(0)
	m.SubscriptionOpened()
	m.SubscriptionOpened()
	m.SubscriptionClosed()
	m.BreakerState("sms", "open")
	m.ObserveSweep(20 * time.Millisecond)
	m.ObserveHTTP("GET", "/api/v1/schedules/{id}", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsCreated.WithLabelValues("new_message")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsReadAll))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LiveSubscriptions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("sms")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/schedules/{id}", "404")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.DoseRecorded("taken")
		m.ReminderSent("refill")
		m.DeliveryFailed("sms")
		m.EventConsumed("ok")
		m.Published(2)
		m.BreakerState("push", "closed")
		m.ObserveSweep(time.Second)
	})
}
