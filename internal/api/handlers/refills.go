package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/refill"
)

const defaultRefillDays = 7

type RefillHandler struct {
	tracker *refill.Tracker
	logger  *zap.Logger
}

func NewRefillHandler(tracker *refill.Tracker, logger *zap.Logger) *RefillHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefillHandler{tracker: tracker, logger: logger}
}

func (h *RefillHandler) Register(r chi.Router) {
	r.Post("/refills", h.Create)
	r.Get("/refills/{id}", h.Get)
	r.Post("/refills/{id}/sent", h.MarkSent)
	r.Post("/refills/{id}/advance", h.Advance)
	r.Post("/refills/{id}/deactivate", h.Deactivate)
	r.Get("/patients/{patientID}/refills/upcoming", h.Upcoming)
}

type createRefillRequest struct {
	PatientID        string `json:"patient_id"`
	ScheduleID       string `json:"schedule_id"`
	MedicationName   string `json:"medication_name"`
	PrescriptionID   string `json:"prescription_id,omitempty"`
	Quantity         *int   `json:"quantity,omitempty"`
	DaysBeforeRefill int    `json:"days_before_refill"`
	LastRefillDate   string `json:"last_refill_date,omitempty"`
	NextRefillDate   string `json:"next_refill_date"`
}

func (h *RefillHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRefillRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	rem, err := h.tracker.Create(r.Context(), &refill.Reminder{
		PatientID:        req.PatientID,
		ScheduleID:       req.ScheduleID,
		MedicationName:   req.MedicationName,
		PrescriptionID:   req.PrescriptionID,
		Quantity:         req.Quantity,
		DaysBeforeRefill: req.DaysBeforeRefill,
		LastRefillDate:   req.LastRefillDate,
		NextRefillDate:   req.NextRefillDate,
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (h *RefillHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.tracker.Get(r.Context(), chi.URLParam(r, "id")))
}

func (h *RefillHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.tracker.MarkSent(r.Context(), chi.URLParam(r, "id")))
}

type advanceRequest struct {
	NextRefillDate string `json:"next_refill_date"`
	Quantity       *int   `json:"quantity,omitempty"`
}

func (h *RefillHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	h.respond(w, r)(h.tracker.Advance(r.Context(), chi.URLParam(r, "id"), req.NextRefillDate, req.Quantity))
}

func (h *RefillHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.tracker.Deactivate(r.Context(), chi.URLParam(r, "id")))
}

// Upcoming lists reminders due within ?days= calendar days, a week when absent.
func (h *RefillHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	days := defaultRefillDays
	if r.URL.Query().Has("days") {
		var err error
		if days, err = intQuery(r, "days"); err != nil {
			fail(w, r, h.logger, err)
			return
		}
	}
	list, err := h.tracker.Upcoming(r.Context(), chi.URLParam(r, "patientID"), days)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []*refill.Reminder{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *RefillHandler) respond(w http.ResponseWriter, r *http.Request) func(*refill.Reminder, error) {
	return func(rem *refill.Reminder, err error) {
		if err != nil {
			fail(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rem)
	}
}
