package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/realtime"
)

type NotificationHandler struct {
	center *notification.Center
	logger *zap.Logger
}

func NewNotificationHandler(center *notification.Center, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{center: center, logger: logger}
}

func (h *NotificationHandler) Register(r chi.Router) {
	r.Post("/notifications", h.Create)
	r.Get("/notifications/{id}", h.Get)
	r.Post("/notifications/{id}/read", h.MarkRead)
	r.Post("/notifications/{id}/unread", h.MarkUnread)
	r.Delete("/notifications/{id}", h.Delete)
	r.Get("/users/{userID}/notifications", h.List)
	r.Get("/users/{userID}/notifications/unread-count", h.UnreadCount)
	r.Post("/users/{userID}/notifications/read-all", h.MarkAllRead)
	r.Get("/ws/users/{userID}/notifications", h.Stream)
}

// createNotificationRequest addresses either one user or a whole role.
type createNotificationRequest struct {
	UserID        string         `json:"user_id,omitempty"`
	RecipientRole string         `json:"recipient_role,omitempty"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Priority      string         `json:"priority,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	ActionURL     string         `json:"action_url,omitempty"`
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	recipient := notification.ToUser(req.UserID)
	if req.UserID == "" {
		recipient = notification.ToRole(req.RecipientRole)
	}
	n, err := h.center.Create(r.Context(), notification.Draft{
		Recipient: recipient,
		Type:      notification.Type(req.Type),
		Title:     req.Title,
		Message:   req.Message,
		Priority:  notification.Priority(req.Priority),
		Data:      req.Data,
		ActionURL: req.ActionURL,
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.center.Get(r.Context(), chi.URLParam(r, "id")))
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.center.MarkRead(r.Context(), chi.URLParam(r, "id")))
}

func (h *NotificationHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.center.MarkUnread(r.Context(), chi.URLParam(r, "id")))
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.center.Delete(r.Context(), chi.URLParam(r, "id")))
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	list, err := h.center.List(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	n, err := h.center.UnreadCount(r.Context(), userID)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "unread": n})
}

// MarkAllRead is not atomic; per-item failures come back in the body with status 200.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	res, err := h.center.MarkAllRead(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stream pushes the user's snapshot over a WebSocket after every change.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := realtime.Stream(w, r, h.center, userID, limit, h.logger); err != nil {
		h.logger.Debug("notification stream ended", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *NotificationHandler) respond(w http.ResponseWriter, r *http.Request) func(*notification.Notification, error) {
	return func(n *notification.Notification, err error) {
		if err != nil {
			fail(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}
