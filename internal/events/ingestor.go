package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/idempotency"
)

// Source names this stream in inbox keys.
const Source = "domain-events"

type Inbox interface {
	Process(ctx context.Context, key, handler string, payload json.RawMessage, fn idempotency.Func) (*idempotency.Result, error)
}

type Notifier interface {
	Create(ctx context.Context, d notification.Draft) (*notification.Notification, error)
}

type Instruments interface {
	EventConsumed(outcome string)
}

type nopInstruments struct{}

func (nopInstruments) EventConsumed(string) {}

// Outcomes reported to Instruments.
const (
	OutcomeCreated   = "created"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Ingestor consumes domain events. The stream redelivers, so every event id passes the
// inbox before a notification is created.
type Ingestor struct {
	inbox       Inbox
	notifier    Notifier
	instruments Instruments
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewIngestor(inbox Inbox, notifier Notifier, in Instruments, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if in == nil {
		in = nopInstruments{}
	}
	return &Ingestor{
		inbox:       inbox,
		notifier:    notifier,
		instruments: in,
		logger:      logger,
		tracer:      otel.Tracer("event-ingestor"),
	}
}

// Handle processes one raw event. Errors for which apperr.IsValidation holds are
// permanent; the caller should dead-letter the message instead of retrying it.
func (i *Ingestor) Handle(ctx context.Context, payload []byte) error {
	ctx, span := i.tracer.Start(ctx, "ingest_domain_event")
	defer span.End()

	var e DomainEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		i.instruments.EventConsumed(OutcomeRejected)
		return apperr.Validation("payload", err.Error())
	}
	if strings.TrimSpace(e.ID) == "" {
		i.instruments.EventConsumed(OutcomeRejected)
		return apperr.Validation("id", "required")
	}
	span.SetAttributes(
		attribute.String("event.id", e.ID),
		attribute.String("event.kind", e.Kind))

	res, err := i.inbox.Process(ctx, idempotency.EventKey(Source, e.ID), e.Kind, payload,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			d, err := Translate(e)
			if err != nil {
				return nil, err
			}
			n, err := i.notifier.Create(ctx, d)
			if err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"notification_id": n.ID})
		})
	switch {
	case errors.Is(err, idempotency.ErrDuplicate):
		// failed permanently before; nothing new can happen
		i.instruments.EventConsumed(OutcomeDuplicate)
		return nil
	case err != nil:
		span.RecordError(err)
		if apperr.IsValidation(err) {
			i.instruments.EventConsumed(OutcomeRejected)
		} else {
			i.instruments.EventConsumed(OutcomeFailed)
		}
		i.logger.Warn("domain event not ingested",
			zap.String("event_id", e.ID),
			zap.String("kind", e.Kind),
			zap.Error(err))
		return err
	case !res.IsNew && !res.WasRecovered:
		i.instruments.EventConsumed(OutcomeDuplicate)
		i.logger.Debug("duplicate domain event", zap.String("event_id", e.ID))
		return nil
	}
	i.instruments.EventConsumed(OutcomeCreated)
	return nil
}
