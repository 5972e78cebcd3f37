// Package adherence records what patients actually did with their doses and derives
// adherence statistics from it. Dose records are sparse: a dose with no record is pending.
package adherence

import (
	"context"
	"time"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/schedule"
)

// State of a dose instance.
type State string

const (
	StatePending State = "pending"
	StateTaken   State = "taken"
	StateSkipped State = "skipped"
)

// DoseRecord is the stored state of one dose, keyed by (ScheduleID, DoseDate, ScheduledTime).
type DoseRecord struct {
	ID            string    `json:"id"`
	ScheduleID    string    `json:"schedule_id"`
	PatientID     string    `json:"patient_id"`
	DoseDate      string    `json:"dose_date"`
	ScheduledTime string    `json:"scheduled_time"`
	State         State     `json:"state"`
	Note          string    `json:"note,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Key identifies the dose a record belongs to.
func (r *DoseRecord) Key() Key {
	return Key{ScheduleID: r.ScheduleID, Date: r.DoseDate, Time: r.ScheduledTime}
}

type Key struct {
	ScheduleID string
	Date       string
	Time       string
}

// Mark is the input of MarkTaken and MarkSkipped. Date defaults to today.
type Mark struct {
	ScheduleID    string `json:"schedule_id"`
	PatientID     string `json:"patient_id"`
	ScheduledTime string `json:"scheduled_time"`
	Date          string `json:"date,omitempty"`
	Note          string `json:"note,omitempty"`
}

// UpcomingDose is an expected dose joined with its recorded state.
type UpcomingDose struct {
	ScheduleID     string    `json:"schedule_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Date           string    `json:"date"`
	ScheduledTime  string    `json:"scheduled_time"`
	At             time.Time `json:"at"`
	State          State     `json:"state"`
	Note           string    `json:"note,omitempty"`
}

// Window is the derived adherence aggregate over a lookback period. It is never stored.
type Window struct {
	PatientID     string  `json:"patient_id"`
	LookbackDays  int     `json:"lookback_days"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	TotalDoses    int     `json:"total_doses"`
	TakenDoses    int     `json:"taken_doses"`
	SkippedDoses  int     `json:"skipped_doses"`
	AdherenceRate float64 `json:"adherence_rate"`
}

// Repository persists dose records.
type Repository interface {
	// Upsert writes rec unless the stored record for the same key has a newer RecordedAt.
	// It returns the record that is stored afterwards and whether rec was applied.
	Upsert(ctx context.Context, rec *DoseRecord) (*DoseRecord, bool, error)
	// ListByPatient returns records whose DoseDate lies in [fromDate, toDate].
	ListByPatient(ctx context.Context, patientID, fromDate, toDate string) ([]*DoseRecord, error)
}

// Schedules is the slice of the schedule registry the ledger reads.
type Schedules interface {
	Get(ctx context.Context, id string) (*schedule.Schedule, error)
	ListActive(ctx context.Context, patientID string) ([]*schedule.Schedule, error)
}
