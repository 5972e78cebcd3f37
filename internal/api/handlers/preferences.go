package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/settings"
)

type PreferenceHandler struct {
	settings *settings.Service
	logger   *zap.Logger
}

func NewPreferenceHandler(svc *settings.Service, logger *zap.Logger) *PreferenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceHandler{settings: svc, logger: logger}
}

func (h *PreferenceHandler) Register(r chi.Router) {
	r.Get("/users/{userID}/preferences", h.Get)
	r.Put("/users/{userID}/preferences", h.Put)
}

func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.settings.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type preferencesRequest struct {
	PushEnabled     bool   `json:"push_enabled"`
	SMSEnabled      bool   `json:"sms_enabled"`
	EmailEnabled    bool   `json:"email_enabled"`
	QuietHoursStart string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   string `json:"quiet_hours_end,omitempty"`
}

// Put replaces the user's preferences; the path decides the user.
func (h *PreferenceHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	p, err := h.settings.Update(r.Context(), &settings.Preferences{
		UserID:          chi.URLParam(r, "userID"),
		PushEnabled:     req.PushEnabled,
		SMSEnabled:      req.SMSEnabled,
		EmailEnabled:    req.EmailEnabled,
		QuietHoursStart: req.QuietHoursStart,
		QuietHoursEnd:   req.QuietHoursEnd,
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
