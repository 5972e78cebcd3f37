// Package events turns upstream domain events (payments, orders, appointments, SOS) into
// notifications.
package events

import (
	"strings"
	"time"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
)

// DomainEvent is the payload published on the domain events topic. Either UserID or Role
// names the recipient. Title and Message override the defaults of the kind.
type DomainEvent struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	UserID     string         `json:"user_id,omitempty"`
	Role       string         `json:"role,omitempty"`
	Title      string         `json:"title,omitempty"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type rule struct {
	typ      notification.Type
	priority notification.Priority
	title    string
	message  string
	// action is a URL template; {id} is replaced by data[ref]
	action string
	ref    string
}

var rules = map[string]rule{
	"payment.succeeded": {
		typ: notification.TypePaymentSuccess, priority: notification.PriorityNormal,
		title: "Payment received", message: "Your payment was successful.",
		action: "/payments/{id}", ref: "payment_id",
	},
	"payment.failed": {
		typ: notification.TypePaymentFailed, priority: notification.PriorityHigh,
		title: "Payment failed", message: "We could not process your payment. Please try again.",
		action: "/payments/{id}", ref: "payment_id",
	},
	"order.updated": {
		typ: notification.TypeOrderUpdate, priority: notification.PriorityNormal,
		title: "Order update", message: "Your order status has changed.",
		action: "/orders/{id}", ref: "order_id",
	},
	"appointment.confirmed": {
		typ: notification.TypeAppointmentConfirmed, priority: notification.PriorityNormal,
		title: "Appointment confirmed", message: "Your appointment has been confirmed.",
		action: "/appointments/{id}", ref: "appointment_id",
	},
	"appointment.cancelled": {
		typ: notification.TypeAppointmentCancelled, priority: notification.PriorityHigh,
		title: "Appointment cancelled", message: "Your appointment has been cancelled.",
		action: "/appointments/{id}", ref: "appointment_id",
	},
	"appointment.reminder": {
		typ: notification.TypeAppointmentReminder, priority: notification.PriorityNormal,
		title: "Upcoming appointment", message: "You have an appointment coming up.",
		action: "/appointments/{id}", ref: "appointment_id",
	},
	"prescription.ready": {
		typ: notification.TypePrescriptionReady, priority: notification.PriorityNormal,
		title: "Prescription ready", message: "Your prescription is ready for pickup.",
		action: "/prescriptions/{id}", ref: "prescription_id",
	},
	"sos.triggered": {
		typ: notification.TypeSOSAlert, priority: notification.PriorityUrgent,
		title: "SOS alert", message: "An emergency alert was raised.",
		action: "/sos/{id}", ref: "sos_id",
	},
	"message.received": {
		typ: notification.TypeNewMessage, priority: notification.PriorityNormal,
		title: "New message", message: "You have a new message.",
		action: "/messages/{id}", ref: "conversation_id",
	},
	"article.published": {
		typ: notification.TypeArticlePublished, priority: notification.PriorityLow,
		title: "New article", message: "A new health article was published.",
		action: "/articles/{id}", ref: "article_id",
	},
	"review.received": {
		typ: notification.TypeReviewReceived, priority: notification.PriorityLow,
		title: "New review", message: "You received a new review.",
		action: "/reviews/{id}", ref: "review_id",
	},
	"system.announcement": {
		typ: notification.TypeSystemAnnouncement, priority: notification.PriorityNormal,
		title: "Announcement",
	},
}

// Kinds lists the event kinds Translate understands.
func Kinds() []string {
	out := make([]string, 0, len(rules))
	for k := range rules {
		out = append(out, k)
	}
	return out
}

// Translate builds the notification draft for e. Unknown kinds and events without a
// recipient are validation errors; retrying them cannot succeed.
func Translate(e DomainEvent) (notification.Draft, error) {
	r, ok := rules[e.Kind]
	if !ok {
		return notification.Draft{}, apperr.Validation("kind", "unknown event kind "+e.Kind)
	}

	var to notification.Recipient
	switch {
	case strings.TrimSpace(e.UserID) != "":
		to = notification.ToUser(e.UserID)
	case strings.TrimSpace(e.Role) != "":
		to = notification.ToRole(e.Role)
	default:
		return notification.Draft{}, apperr.Validation("user_id", "event has no recipient")
	}

	d := notification.Draft{
		Recipient: to,
		Type:      r.typ,
		Title:     firstNonEmpty(e.Title, r.title),
		Message:   firstNonEmpty(e.Message, r.message),
		Priority:  r.priority,
		Data:      map[string]any{},
	}
	for k, v := range e.Data {
		d.Data[k] = v
	}
	d.Data["event_id"] = e.ID
	d.Data["event_kind"] = e.Kind

	if r.action != "" {
		if id, ok := e.Data[r.ref].(string); ok && id != "" {
			d.ActionURL = strings.ReplaceAll(r.action, "{id}", id)
		}
	}
	if d.Message == "" {
		return notification.Draft{}, apperr.Validation("message", "required for "+e.Kind)
	}
	return d, nil
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
