package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
)

// NotificationRepo stores notifications and, in the same transaction, an outbox entry
// describing every write. An empty changesTopic disables the outbox entries.
type NotificationRepo struct {
	pool         *pgxpool.Pool
	changesTopic string
}

func NewNotificationRepo(pool *pgxpool.Pool, changesTopic string) *NotificationRepo {
	return &NotificationRepo{pool: pool, changesTopic: changesTopic}
}

const notificationColumns = `id::text, user_id, recipient_role, type, title, message, priority, read,
	read_at, data, action_url, created_at, deleted, deleted_at`

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	n := &notification.Notification{}
	var data []byte
	if err := row.Scan(&n.ID, &n.UserID, &n.RecipientRole, &n.Type, &n.Title, &n.Message, &n.Priority,
		&n.Read, &n.ReadAt, &data, &n.ActionURL, &n.CreatedAt, &n.Deleted, &n.DeletedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("decode notification data: %w", err)
		}
	}
	return n, nil
}

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	var data []byte
	if n.Data != nil {
		var err error
		if data, err = json.Marshal(n.Data); err != nil {
			return fmt.Errorf("encode notification data: %w", err)
		}
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notifications
			(id, user_id, recipient_role, type, title, message, priority, read, read_at, data,
			 action_url, created_at, deleted, deleted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, n.ID, n.UserID, n.RecipientRole, n.Type, n.Title, n.Message, n.Priority, n.Read, n.ReadAt, data,
			n.ActionURL, n.CreatedAt, n.Deleted, n.DeletedAt); err != nil {
			return err
		}
		return r.emit(ctx, tx, n, notification.OpCreated, n.CreatedAt)
	})
}

func (r *NotificationRepo) Get(ctx context.Context, id string) (*notification.Notification, error) {
	key, err := rowID("notification", id)
	if err != nil {
		return nil, err
	}
	n, err := scanNotification(r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("notification", id)
	}
	return n, err
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 AND NOT deleted
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*notification.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read AND NOT deleted`, userID).Scan(&count)
	return count, err
}

func (r *NotificationRepo) ListUnreadIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text FROM notifications
		WHERE user_id = $1 AND NOT read AND NOT deleted
		ORDER BY seq
	`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// SetRead keeps the first read_at when a read notification is marked read again.
func (r *NotificationRepo) SetRead(ctx context.Context, id string, read bool, at time.Time) (*notification.Notification, error) {
	op := notification.OpUnread
	if read {
		op = notification.OpRead
	}
	key, err := rowID("notification", id)
	if err != nil {
		return nil, err
	}
	return r.update(ctx, id, op, at, `
		UPDATE notifications
		SET read = $2,
		    read_at = CASE WHEN NOT $2 THEN NULL WHEN read THEN read_at ELSE $3 END
		WHERE id = $1
		RETURNING `+notificationColumns, key, read, at)
}

func (r *NotificationRepo) SoftDelete(ctx context.Context, id string, at time.Time) (*notification.Notification, error) {
	key, err := rowID("notification", id)
	if err != nil {
		return nil, err
	}
	return r.update(ctx, id, notification.OpDeleted, at, `
		UPDATE notifications
		SET deleted = TRUE, deleted_at = COALESCE(deleted_at, $2)
		WHERE id = $1
		RETURNING `+notificationColumns, key, at)
}

func (r *NotificationRepo) update(ctx context.Context, id, op string, at time.Time, query string, args ...any) (*notification.Notification, error) {
	var out *notification.Notification
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		n, err := scanNotification(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return err
		}
		out = n
		return r.emit(ctx, tx, n, op, at)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("notification", id)
	}
	return out, err
}

func (r *NotificationRepo) emit(ctx context.Context, tx pgx.Tx, n *notification.Notification, op string, at time.Time) error {
	if r.changesTopic == "" {
		return nil
	}
	payload, err := json.Marshal(notification.Change{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Role:           n.RecipientRole,
		Op:             op,
		At:             at,
	})
	if err != nil {
		return err
	}
	key := n.UserID
	if key == "" {
		key = "role:" + n.RecipientRole
	}
	return WriteEntry(ctx, tx, &OutboxEntry{
		AggregateID:   n.ID,
		AggregateType: "notification",
		EventType:     "notification." + op,
		Payload:       payload,
		KafkaTopic:    r.changesTopic,
		KafkaKey:      key,
	})
}
