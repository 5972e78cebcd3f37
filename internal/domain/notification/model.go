// Package notification owns notification records: creation, read state, soft deletion and
// live snapshot subscriptions per user.
package notification

import (
	"context"
	"time"
)

// Type is the closed set of notification kinds.
type Type string

const (
	TypeAppointmentReminder  Type = "appointment_reminder"
	TypeMedicationReminder   Type = "medication_reminder"
	TypeNewMessage           Type = "new_message"
	TypeOrderUpdate          Type = "order_update"
	TypePaymentSuccess       Type = "payment_success"
	TypePaymentFailed        Type = "payment_failed"
	TypeAppointmentConfirmed Type = "appointment_confirmed"
	TypeAppointmentCancelled Type = "appointment_cancelled"
	TypePrescriptionReady    Type = "prescription_ready"
	TypeSOSAlert             Type = "sos_alert"
	TypeSystemAnnouncement   Type = "system_announcement"
	TypeArticlePublished     Type = "article_published"
	TypeReviewReceived       Type = "review_received"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAppointmentReminder, TypeMedicationReminder, TypeNewMessage, TypeOrderUpdate,
		TypePaymentSuccess, TypePaymentFailed, TypeAppointmentConfirmed, TypeAppointmentCancelled,
		TypePrescriptionReady, TypeSOSAlert, TypeSystemAnnouncement, TypeArticlePublished,
		TypeReviewReceived:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Recipient is either a single user or a role broadcast. Build one with ToUser or ToRole.
type Recipient struct {
	userID string
	role   string
}

func ToUser(id string) Recipient  { return Recipient{userID: id} }
func ToRole(role string) Recipient { return Recipient{role: role} }

func (r Recipient) UserID() string { return r.userID }
func (r Recipient) Role() string   { return r.role }
func (r Recipient) IsRole() bool   { return r.role != "" && r.userID == "" }

type Notification struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id,omitempty"`
	RecipientRole string         `json:"recipient_role,omitempty"`
	Type          Type           `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Priority      Priority       `json:"priority"`
	Read          bool           `json:"read"`
	ReadAt        *time.Time     `json:"read_at,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	ActionURL     string         `json:"action_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Deleted       bool           `json:"deleted"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
}

// Draft is the input of Create.
type Draft struct {
	Recipient Recipient
	Type      Type
	Title     string
	Message   string
	Priority  Priority
	Data      map[string]any
	ActionURL string
}

// Snapshot is the full state a subscriber sees: the newest non-deleted notifications and
// the unread count. Seq increases across every snapshot a Center produces.
type Snapshot struct {
	UserID        string          `json:"user_id"`
	Notifications []*Notification `json:"notifications"`
	Unread        int             `json:"unread"`
	Seq           uint64          `json:"seq"`
	At            time.Time       `json:"at"`
}

type ItemFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult reports a multi-record operation that is not atomic.
type BatchResult struct {
	Succeeded int           `json:"succeeded"`
	Failed    []ItemFailure `json:"failed"`
}

// Repository persists notifications. Get, SetRead and SoftDelete return
// apperr.NotFoundError for unknown ids. ListByUser, CountUnread and ListUnreadIDs never
// include deleted records.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id string) (*Notification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	ListUnreadIDs(ctx context.Context, userID string) ([]string, error)
	SetRead(ctx context.Context, id string, read bool, at time.Time) (*Notification, error)
	SoftDelete(ctx context.Context, id string, at time.Time) (*Notification, error)
}

// Instruments receives counters from the Center. Metrics implementations plug in here.
type Instruments interface {
	NotificationCreated(typ string)
	NotificationsRead(n int)
	SubscriptionOpened()
	SubscriptionClosed()
}

type nopInstruments struct{}

func (nopInstruments) NotificationCreated(string) {}
func (nopInstruments) NotificationsRead(int)      {}
func (nopInstruments) SubscriptionOpened()        {}
func (nopInstruments) SubscriptionClosed()        {}

// Change describes a write to a notification. Stores that publish changes across
// processes emit one per write so remote Centers can Refresh their subscribers.
type Change struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id,omitempty"`
	Role           string    `json:"role,omitempty"`
	Op             string    `json:"op"`
	At             time.Time `json:"at"`
}

const (
	OpCreated = "created"
	OpRead    = "read"
	OpUnread  = "unread"
	OpDeleted = "deleted"
)
