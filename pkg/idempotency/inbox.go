// Package idempotency guards handlers against redelivered messages and repeated work.
// Keys are deterministic: the same event or the same dose always yields the same key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
)

// Status of an inbox entry.
type Status string

const (
	StatusStarted     Status = "STARTED"
	StatusFinished    Status = "FINISHED"
	StatusRecoverable Status = "RECOVERABLE"
	StatusFailed      Status = "FAILED"
)

type Entry struct {
	Key       string
	Handler   string
	Status    Status
	Payload   json.RawMessage
	Result    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

type Config struct {
	// TTL is how long entries are kept before cleanup removes them
	TTL time.Duration
	// CleanupInterval is how often expired entries are deleted
	CleanupInterval time.Duration
	// RecoveryTimeout is when a STARTED entry is considered abandoned
	RecoveryTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:             7 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		RecoveryTimeout: 5 * time.Minute,
	}
}

var (
	// ErrDuplicate is returned when the key was claimed by an earlier delivery.
	ErrDuplicate = errors.New("idempotency: already processed")
	// ErrInProgress is returned while another handler holds the key.
	ErrInProgress = errors.New("idempotency: in progress elsewhere")
)

// Result describes how Process treated a key.
type Result struct {
	IsNew        bool
	WasRecovered bool
	Output       json.RawMessage
}

// Func is the handler run at most once per key.
type Func func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Inbox is the Postgres-backed store. The inbox table lives in the care schema.
type Inbox struct {
	pool   *pgxpool.Pool
	config Config
	logger *zap.Logger
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewInbox(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Inbox{
		pool:   pool,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("inbox"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Process runs fn unless key already finished. Terminal failures are remembered and not
// retried; other failures leave the key recoverable for the next delivery.
func (i *Inbox) Process(ctx context.Context, key, handler string, payload json.RawMessage, fn Func) (*Result, error) {
	ctx, span := i.tracer.Start(ctx, "inbox_process",
		trace.WithAttributes(
			attribute.String("idempotency_key", key),
			attribute.String("handler", handler),
		))
	defer span.End()

	entry, err := i.get(ctx, key)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check inbox: %w", err)
	}
	if entry != nil {
		switch entry.Status {
		case StatusFinished:
			span.SetAttributes(attribute.Bool("duplicate", true))
			return &Result{Output: entry.Result}, nil
		case StatusFailed:
			return nil, fmt.Errorf("%w: %s failed permanently", ErrDuplicate, key)
		case StatusStarted:
			if time.Since(entry.UpdatedAt) <= i.config.RecoveryTimeout {
				return nil, ErrInProgress
			}
			if err := i.setStatus(ctx, key, StatusRecoverable, nil); err != nil {
				return nil, fmt.Errorf("mark recoverable: %w", err)
			}
		}
	}

	if err := i.start(ctx, key, handler, payload); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("start processing: %w", err)
	}

	out, handlerErr := fn(ctx, payload)
	if handlerErr != nil {
		status := StatusRecoverable
		if Terminal(handlerErr) {
			status = StatusFailed
		}
		msg, _ := json.Marshal(map[string]string{"error": handlerErr.Error()})
		if err := i.setStatus(ctx, key, status, msg); err != nil {
			i.logger.Error("failed to record handler failure", zap.String("key", key), zap.Error(err))
		}
		span.RecordError(handlerErr)
		return nil, handlerErr
	}

	if err := i.setStatus(ctx, key, StatusFinished, out); err != nil {
		// the handler already ran; a redelivery will find the entry STARTED and wait
		i.logger.Error("failed to mark finished", zap.String("key", key), zap.Error(err))
	}
	return &Result{
		IsNew:        entry == nil,
		WasRecovered: entry != nil,
		Output:       out,
	}, nil
}

// Claim records key as finished if nobody did before. It reports whether this call won.
func (i *Inbox) Claim(ctx context.Context, key string) (bool, error) {
	tag, err := i.pool.Exec(ctx, `
		INSERT INTO inbox (idempotency_key, handler_name, status, expires_at)
		VALUES ($1, 'claim', $2, $3)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key, StatusFinished, time.Now().Add(i.config.TTL))
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Key hashes parts into a stable key. Times should be formatted by the caller.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// EventKey is the inbox key of an upstream event.
func EventKey(source, eventID string) string {
	return "event:" + source + ":" + eventID
}

// Terminal reports errors that will fail the same way on every retry.
func Terminal(err error) bool {
	return apperr.IsValidation(err) || apperr.IsNotFound(err)
}

func (i *Inbox) get(ctx context.Context, key string) (*Entry, error) {
	e := &Entry{}
	err := i.pool.QueryRow(ctx, `
		SELECT idempotency_key, handler_name, status, payload, result, created_at, updated_at, expires_at
		FROM inbox
		WHERE idempotency_key = $1
	`, key).Scan(&e.Key, &e.Handler, &e.Status, &e.Payload, &e.Result, &e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (i *Inbox) start(ctx context.Context, key, handler string, payload json.RawMessage) error {
	var returned string
	err := i.pool.QueryRow(ctx, `
		INSERT INTO inbox (idempotency_key, handler_name, status, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = $3, updated_at = NOW()
		WHERE inbox.status = 'RECOVERABLE'
		RETURNING idempotency_key
	`, key, handler, StatusStarted, payload, time.Now().Add(i.config.TTL)).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return err
}

func (i *Inbox) setStatus(ctx context.Context, key string, status Status, result json.RawMessage) error {
	_, err := i.pool.Exec(ctx, `
		UPDATE inbox
		SET status = $1, result = COALESCE($2, result), updated_at = NOW()
		WHERE idempotency_key = $3
	`, status, result, key)
	return err
}

// StartCleanup launches the expiry loop. Stop ends it.
func (i *Inbox) StartCleanup() {
	go i.cleanupLoop()
	i.logger.Info("inbox cleanup started", zap.Duration("interval", i.config.CleanupInterval))
}

func (i *Inbox) Stop() {
	i.cancel()
	<-i.done
	i.logger.Info("inbox stopped")
}

func (i *Inbox) cleanupLoop() {
	defer close(i.done)

	ticker := time.NewTicker(i.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-i.ctx.Done():
			return
		case <-ticker.C:
			if _, err := i.RecoverStale(i.ctx); err != nil {
				i.logger.Error("inbox recovery failed", zap.Error(err))
			}
			if err := i.cleanup(i.ctx); err != nil {
				i.logger.Error("inbox cleanup failed", zap.Error(err))
			}
		}
	}
}

func (i *Inbox) cleanup(ctx context.Context) error {
	tag, err := i.pool.Exec(ctx, `DELETE FROM inbox WHERE expires_at < NOW()`)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		i.logger.Info("inbox cleanup completed", zap.Int64("deleted", tag.RowsAffected()))
	}
	return nil
}

// RecoverStale marks abandoned STARTED entries RECOVERABLE.
func (i *Inbox) RecoverStale(ctx context.Context) (int64, error) {
	tag, err := i.pool.Exec(ctx, `
		UPDATE inbox
		SET status = 'RECOVERABLE', updated_at = NOW()
		WHERE status = 'STARTED'
		  AND updated_at < NOW() - make_interval(secs => $1)
	`, i.config.RecoveryTimeout.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type Stats struct {
	Total       int64
	Started     int64
	Finished    int64
	Recoverable int64
	Failed      int64
}

func (i *Inbox) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	err := i.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'STARTED'),
			COUNT(*) FILTER (WHERE status = 'FINISHED'),
			COUNT(*) FILTER (WHERE status = 'RECOVERABLE'),
			COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM inbox
	`).Scan(&s.Total, &s.Started, &s.Finished, &s.Recoverable, &s.Failed)
	if err != nil {
		return nil, err
	}
	return s, nil
}
