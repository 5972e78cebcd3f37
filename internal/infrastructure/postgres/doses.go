package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/adherence"
)

type DoseRepo struct {
	pool *pgxpool.Pool
}

func NewDoseRepo(pool *pgxpool.Pool) *DoseRepo {
	return &DoseRepo{pool: pool}
}

const doseColumns = `id, schedule_id::text, patient_id, dose_date::text, scheduled_time, state, note, recorded_at`

func scanDose(row pgx.Row) (*adherence.DoseRecord, error) {
	d := &adherence.DoseRecord{}
	if err := row.Scan(&d.ID, &d.ScheduleID, &d.PatientID, &d.DoseDate, &d.ScheduledTime,
		&d.State, &d.Note, &d.RecordedAt); err != nil {
		return nil, err
	}
	return d, nil
}

// Upsert keeps the newest write per dose key. A conflicting row with a later recorded_at
// is left alone and returned with applied == false.
func (r *DoseRepo) Upsert(ctx context.Context, rec *adherence.DoseRecord) (*adherence.DoseRecord, bool, error) {
	stored, err := scanDose(r.pool.QueryRow(ctx, `
		INSERT INTO dose_records (id, schedule_id, patient_id, dose_date, scheduled_time, state, note, recorded_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8)
		ON CONFLICT (schedule_id, dose_date, scheduled_time) DO UPDATE
		SET state = EXCLUDED.state, note = EXCLUDED.note, recorded_at = EXCLUDED.recorded_at
		WHERE dose_records.recorded_at <= EXCLUDED.recorded_at
		RETURNING `+doseColumns,
		rec.ID, rec.ScheduleID, rec.PatientID, rec.DoseDate, rec.ScheduledTime, rec.State, rec.Note, rec.RecordedAt))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	stored, err = scanDose(r.pool.QueryRow(ctx, `
		SELECT `+doseColumns+` FROM dose_records
		WHERE schedule_id = $1 AND dose_date = $2::date AND scheduled_time = $3
	`, rec.ScheduleID, rec.DoseDate, rec.ScheduledTime))
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *DoseRepo) ListByPatient(ctx context.Context, patientID, fromDate, toDate string) ([]*adherence.DoseRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doseColumns+` FROM dose_records
		WHERE patient_id = $1 AND dose_date BETWEEN $2::date AND $3::date
		ORDER BY dose_date, scheduled_time
	`, patientID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*adherence.DoseRecord{}
	for rows.Next() {
		d, err := scanDose(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
