package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/schedule"
)

type ScheduleRepo struct {
	pool *pgxpool.Pool
}

func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

const scheduleColumns = `id, patient_id, medication_name, dosage, frequency, times,
	start_date::text, COALESCE(end_date::text, ''), instructions, prescribed_by, active,
	created_at, updated_at`

func scanSchedule(row pgx.Row) (*schedule.Schedule, error) {
	s := &schedule.Schedule{}
	err := row.Scan(&s.ID, &s.PatientID, &s.MedicationName, &s.Dosage, &s.Frequency, &s.Times,
		&s.StartDate, &s.EndDate, &s.Instructions, &s.PrescribedBy, &s.Active,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ScheduleRepo) Create(ctx context.Context, s *schedule.Schedule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO medication_schedules
		(id, patient_id, medication_name, dosage, frequency, times, start_date, end_date,
		 instructions, prescribed_by, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, NULLIF($8, '')::date, $9, $10, $11, $12, $13)
	`, s.ID, s.PatientID, s.MedicationName, s.Dosage, s.Frequency, s.Times, s.StartDate, s.EndDate,
		s.Instructions, s.PrescribedBy, s.Active, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *ScheduleRepo) Get(ctx context.Context, id string) (*schedule.Schedule, error) {
	key, err := rowID("schedule", id)
	if err != nil {
		return nil, err
	}
	s, err := scanSchedule(r.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM medication_schedules WHERE id = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("schedule", id)
	}
	return s, err
}

func (r *ScheduleRepo) List(ctx context.Context, q schedule.Query) ([]*schedule.Schedule, error) {
	column := "patient_id"
	if q.Owner.IsDoctor() {
		column = "prescribed_by"
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM medication_schedules
		WHERE `+column+` = $1 AND (active OR NOT $2)
		ORDER BY created_at ASC, id ASC
	`, q.Owner.ID(), q.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*schedule.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScheduleRepo) Update(ctx context.Context, s *schedule.Schedule) error {
	key, err := rowID("schedule", s.ID)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE medication_schedules
		SET times = $2, instructions = $3, active = $4, end_date = NULLIF($5, '')::date, updated_at = $6
		WHERE id = $1
	`, key, s.Times, s.Instructions, s.Active, s.EndDate, s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule", s.ID)
	}
	return nil
}

func (r *ScheduleRepo) ActivePatients(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT patient_id FROM medication_schedules
		WHERE active
		GROUP BY patient_id
		ORDER BY MIN(created_at)
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
