// Package schedule is the registry of medication schedules, the source of truth for
// what a patient is supposed to take and when.
package schedule

import (
	"time"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/doseclock"
)

// Frequency is the closed set of recurrence categories.
type Frequency string

const (
	OnceDaily      Frequency = "once_daily"
	TwiceDaily     Frequency = "twice_daily"
	ThriceDaily    Frequency = "thrice_daily"
	FourTimesDaily Frequency = "four_times_daily"
	AsNeeded       Frequency = "as_needed"
)

func (f Frequency) Valid() bool {
	switch f {
	case OnceDaily, TwiceDaily, ThriceDaily, FourTimesDaily, AsNeeded:
		return true
	}
	return false
}

// Schedule is a recurring medication regimen for one patient.
type Schedule struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Frequency      Frequency `json:"frequency"`
	Times          []string  `json:"times"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date,omitempty"`
	Instructions   string    `json:"instructions,omitempty"`
	PrescribedBy   string    `json:"prescribed_by,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Plan converts the stored recurrence fields into a Dose Clock plan.
func (s *Schedule) Plan() (doseclock.Plan, error) {
	return doseclock.NewPlan(s.Times, s.Frequency == AsNeeded, s.StartDate, s.EndDate)
}

type ownerKind int

const (
	ownerPatient ownerKind = iota + 1
	ownerDoctor
)

// Owner selects schedules either by the patient taking them or the doctor who prescribed
// them. Build one with ForPatient or ForDoctor.
type Owner struct {
	kind ownerKind
	id   string
}

func ForPatient(id string) Owner { return Owner{kind: ownerPatient, id: id} }
func ForDoctor(id string) Owner { return Owner{kind: ownerDoctor, id: id} }

func (o Owner) ID() string { return o.id }
func (o Owner) IsPatient() bool { return o.kind == ownerPatient }
func (o Owner) IsDoctor() bool { return o.kind == ownerDoctor }
func (o Owner) valid() bool { return o.kind != 0 && o.id != "" }

// Matches reports whether s belongs to o.
func (o Owner) Matches(s *Schedule) bool {
	switch o.kind {
	case ownerPatient:
		return s.PatientID == o.id
	case ownerDoctor:
		return s.PrescribedBy == o.id
	}
	return false
}

func (o Owner) String() string {
	switch o.kind {
	case ownerPatient:
		return "patient:" + o.id
	case ownerDoctor:
		return "doctor:" + o.id
	}
	return "unknown"
}

// Query filters List.
type Query struct {
	Owner      Owner
	ActiveOnly bool
}
