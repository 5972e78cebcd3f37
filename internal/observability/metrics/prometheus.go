// Package metrics defines the Prometheus instruments of the care services. All methods are
// safe on a nil *Metrics, so components can be built without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	DosesRecorded        *prometheus.CounterVec
	NotificationsCreated *prometheus.CounterVec
	NotificationsReadAll prometheus.Counter
	LiveSubscriptions    prometheus.Gauge
	RemindersSent        *prometheus.CounterVec
	DeliveryFailures     *prometheus.CounterVec
	EventsConsumed       *prometheus.CounterVec
	OutboxPublished      prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
	SweepDuration        prometheus.Histogram
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// New creates the instruments and registers them on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		DosesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "care_doses_recorded_total",
			Help: "Dose records written, by state",
		}, []string{"state"}),
		NotificationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "care_notifications_created_total",
			Help: "Notifications created, by type",
		}, []string{"type"}),
		NotificationsReadAll: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_notifications_read_total",
			Help: "Notifications marked read",
		}),
		LiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "care_live_subscriptions",
			Help: "Open notification snapshot subscriptions",
		}),
		RemindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "care_reminders_sent_total",
			Help: "Reminders announced by the sweeper, by kind",
		}, []string{"kind"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "care_reminder_delivery_failures_total",
			Help: "Reminder deliveries that failed, by channel",
		}, []string{"channel"}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "care_domain_events_consumed_total",
			Help: "Upstream domain events consumed, by outcome",
		}, []string{"outcome"}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "care_outbox_published_total",
			Help: "Outbox entries published to the stream",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "care_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "care_reminder_sweep_duration_seconds",
			Help:    "Duration of one reminder sweep",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "care_http_requests_total",
			Help: "HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "care_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.DosesRecorded,
		m.NotificationsCreated,
		m.NotificationsReadAll,
		m.LiveSubscriptions,
		m.RemindersSent,
		m.DeliveryFailures,
		m.EventsConsumed,
		m.OutboxPublished,
		m.CircuitBreakerState,
		m.SweepDuration,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) DoseRecorded(state string) {
	if m == nil {
		return
	}
	m.DosesRecorded.WithLabelValues(state).Inc()
}

func (m *Metrics) NotificationCreated(typ string) {
	if m == nil {
		return
	}
	m.NotificationsCreated.WithLabelValues(typ).Inc()
}

func (m *Metrics) NotificationsRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.NotificationsReadAll.Add(float64(n))
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.LiveSubscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.LiveSubscriptions.Dec()
}

func (m *Metrics) ReminderSent(kind string) {
	if m == nil {
		return
	}
	m.RemindersSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) DeliveryFailed(channel string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) EventConsumed(outcome string) {
	if m == nil {
		return
	}
	m.EventsConsumed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Published(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

// BreakerState records a transition; state is one of closed, open, half-open.
func (m *Metrics) BreakerState(name, state string) {
	if m == nil {
		return
	}
	v := 0.0
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry g, or the default gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
