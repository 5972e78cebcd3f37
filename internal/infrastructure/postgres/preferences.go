package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/settings"
)

type PreferenceRepo struct {
	pool *pgxpool.Pool
}

func NewPreferenceRepo(pool *pgxpool.Pool) *PreferenceRepo {
	return &PreferenceRepo{pool: pool}
}

func (r *PreferenceRepo) Get(ctx context.Context, userID string) (*settings.Preferences, error) {
	p := &settings.Preferences{}
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, push_enabled, sms_enabled, email_enabled, quiet_hours_start, quiet_hours_end, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.PushEnabled, &p.SMSEnabled, &p.EmailEnabled,
		&p.QuietHoursStart, &p.QuietHoursEnd, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("preferences", userID)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PreferenceRepo) Upsert(ctx context.Context, p *settings.Preferences) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_preferences
		(user_id, push_enabled, sms_enabled, email_enabled, quiet_hours_start, quiet_hours_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET push_enabled = EXCLUDED.push_enabled,
		    sms_enabled = EXCLUDED.sms_enabled,
		    email_enabled = EXCLUDED.email_enabled,
		    quiet_hours_start = EXCLUDED.quiet_hours_start,
		    quiet_hours_end = EXCLUDED.quiet_hours_end,
		    updated_at = EXCLUDED.updated_at
	`, p.UserID, p.PushEnabled, p.SMSEnabled, p.EmailEnabled, p.QuietHoursStart, p.QuietHoursEnd, p.UpdatedAt)
	return err
}
