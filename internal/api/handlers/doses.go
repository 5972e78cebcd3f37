package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/adherence"
)

type DoseHandler struct {
	ledger *adherence.Ledger
	logger *zap.Logger
}

func NewDoseHandler(ledger *adherence.Ledger, logger *zap.Logger) *DoseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoseHandler{ledger: ledger, logger: logger}
}

func (h *DoseHandler) Register(r chi.Router) {
	r.Post("/doses/taken", h.MarkTaken)
	r.Post("/doses/skipped", h.MarkSkipped)
	r.Get("/patients/{patientID}/doses/upcoming", h.Upcoming)
	r.Get("/patients/{patientID}/adherence", h.Adherence)
}

func (h *DoseHandler) MarkTaken(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.ledger.MarkTaken)
}

func (h *DoseHandler) MarkSkipped(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.ledger.MarkSkipped)
}

func (h *DoseHandler) mark(w http.ResponseWriter, r *http.Request, fn func(context.Context, adherence.Mark) (*adherence.DoseRecord, error)) {
	var m adherence.Mark
	if err := decode(r, &m); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	rec, err := fn(r.Context(), m)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *DoseHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	hours, err := intQuery(r, "hours")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	doses, err := h.ledger.UpcomingDoses(r.Context(), chi.URLParam(r, "patientID"), hours)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if doses == nil {
		doses = []adherence.UpcomingDose{}
	}
	writeJSON(w, http.StatusOK, doses)
}

func (h *DoseHandler) Adherence(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days")
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	window, err := h.ledger.Stats(r.Context(), chi.URLParam(r, "patientID"), days)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}
