package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/refill"
)

type RefillRepo struct {
	pool *pgxpool.Pool
}

func NewRefillRepo(pool *pgxpool.Pool) *RefillRepo {
	return &RefillRepo{pool: pool}
}

const refillColumns = `id, patient_id, medication_name, schedule_id, prescription_id, quantity,
	days_before_refill, last_refill_date::text, next_refill_date::text, reminder_sent,
	reminder_sent_at, active, created_at, updated_at`

func scanRefill(row pgx.Row) (*refill.Reminder, error) {
	r := &refill.Reminder{}
	if err := row.Scan(&r.ID, &r.PatientID, &r.MedicationName, &r.ScheduleID, &r.PrescriptionID,
		&r.Quantity, &r.DaysBeforeRefill, &r.LastRefillDate, &r.NextRefillDate, &r.ReminderSent,
		&r.ReminderSentAt, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *RefillRepo) Create(ctx context.Context, r *refill.Reminder) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO refill_reminders
		(id, patient_id, medication_name, schedule_id, prescription_id, quantity, days_before_refill,
		 last_refill_date, next_refill_date, reminder_sent, reminder_sent_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9::date, $10, $11, $12, $13, $14)
	`, r.ID, r.PatientID, r.MedicationName, r.ScheduleID, r.PrescriptionID, r.Quantity, r.DaysBeforeRefill,
		r.LastRefillDate, r.NextRefillDate, r.ReminderSent, r.ReminderSentAt, r.Active, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *RefillRepo) Get(ctx context.Context, id string) (*refill.Reminder, error) {
	key, err := rowID("refill reminder", id)
	if err != nil {
		return nil, err
	}
	r, err := scanRefill(p.pool.QueryRow(ctx,
		`SELECT `+refillColumns+` FROM refill_reminders WHERE id = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("refill reminder", id)
	}
	return r, err
}

func (p *RefillRepo) Update(ctx context.Context, r *refill.Reminder) error {
	key, err := rowID("refill reminder", r.ID)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE refill_reminders
		SET quantity = $2, last_refill_date = $3::date, next_refill_date = $4::date,
		    reminder_sent = $5, reminder_sent_at = $6, active = $7, updated_at = $8
		WHERE id = $1
	`, key, r.Quantity, r.LastRefillDate, r.NextRefillDate, r.ReminderSent, r.ReminderSentAt, r.Active, r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("refill reminder", r.ID)
	}
	return nil
}

func (p *RefillRepo) List(ctx context.Context, f refill.Filter) ([]*refill.Reminder, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+refillColumns+` FROM refill_reminders
		WHERE active
		  AND ($1 = '' OR patient_id = $1)
		  AND ($2 = '' OR schedule_id = $2)
		  AND (NOT $3 OR NOT reminder_sent)
		ORDER BY created_at, id
	`, f.PatientID, f.ScheduleID, f.UnsentOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*refill.Reminder{}
	for rows.Next() {
		r, err := scanRefill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
