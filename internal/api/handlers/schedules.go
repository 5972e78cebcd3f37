package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/refill"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/schedule"
)

type ScheduleHandler struct {
	schedules *schedule.Service
	refills   *refill.Tracker
	logger    *zap.Logger
}

func NewScheduleHandler(schedules *schedule.Service, refills *refill.Tracker, logger *zap.Logger) *ScheduleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleHandler{schedules: schedules, refills: refills, logger: logger}
}

func (h *ScheduleHandler) Register(r chi.Router) {
	r.Post("/schedules", h.Create)
	r.Get("/schedules/{id}", h.Get)
	r.Patch("/schedules/{id}", h.Update)
	r.Post("/schedules/{id}/deactivate", h.Deactivate)
	r.Get("/patients/{patientID}/schedules", h.ListForPatient)
	r.Get("/doctors/{doctorID}/schedules", h.ListForDoctor)
}

type createScheduleRequest struct {
	PatientID      string   `json:"patient_id"`
	MedicationName string   `json:"medication_name"`
	Dosage         string   `json:"dosage"`
	Frequency      string   `json:"frequency"`
	Times          []string `json:"times"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date,omitempty"`
	Instructions   string   `json:"instructions,omitempty"`
	PrescribedBy   string   `json:"prescribed_by,omitempty"`
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	sch, err := h.schedules.Create(r.Context(), &schedule.Schedule{
		PatientID:      req.PatientID,
		MedicationName: req.MedicationName,
		Dosage:         req.Dosage,
		Frequency:      schedule.Frequency(req.Frequency),
		Times:          req.Times,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Instructions:   req.Instructions,
		PrescribedBy:   req.PrescribedBy,
	})
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sch)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	sch, err := h.schedules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// updateScheduleRequest carries the mutable fields; absent fields are left alone.
type updateScheduleRequest struct {
	Times        []string `json:"times,omitempty"`
	Instructions *string  `json:"instructions,omitempty"`
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateScheduleRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	sch, err := h.schedules.Get(r.Context(), id)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	if req.Times != nil {
		if sch, err = h.schedules.UpdateTimes(r.Context(), id, req.Times); err != nil {
			fail(w, r, h.logger, err)
			return
		}
	}
	if req.Instructions != nil {
		if sch, err = h.schedules.UpdateInstructions(r.Context(), id, *req.Instructions); err != nil {
			fail(w, r, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sch)
}

// Deactivate stops the schedule and every refill reminder that belongs to it.
func (h *ScheduleHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	sch, err := h.schedules.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	n, err := h.refills.DeactivateForSchedule(r.Context(), sch.ID)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedule":            sch,
		"refills_deactivated":   n,
	})
}

func (h *ScheduleHandler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, schedule.ForPatient(chi.URLParam(r, "patientID")))
}

func (h *ScheduleHandler) ListForDoctor(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, schedule.ForDoctor(chi.URLParam(r, "doctorID")))
}

// list returns active schedules unless ?all=true.
func (h *ScheduleHandler) list(w http.ResponseWriter, r *http.Request, owner schedule.Owner) {
	activeOnly := r.URL.Query().Get("all") != "true"
	list, err := h.schedules.ListByOwner(r.Context(), owner, activeOnly)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
