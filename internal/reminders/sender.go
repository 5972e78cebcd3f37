package reminders

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/settings"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/circuitbreaker"
)

// Delivery is one reminder going out on one channel.
type Delivery struct {
	UserID         string
	Channel        settings.Channel
	NotificationID string
	Title          string
	Message        string
	Data           map[string]any
}

// Sender is the contract of the push, SMS and email gateways.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// LogSender writes deliveries to the log. It stands in for gateways in development.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, d Delivery) error {
	s.logger.Info("reminder delivered",
		zap.String("user_id", d.UserID),
		zap.String("channel", string(d.Channel)),
		zap.String("notification_id", d.NotificationID),
		zap.String("title", d.Title))
	return nil
}

// ErrRejected marks a gateway refusing one recipient. It does not count against the
// channel's breaker.
var ErrRejected = errors.New("delivery rejected by gateway")

// BreakerSender routes each channel through its own circuit breaker so one failing
// gateway cannot stall the sweep.
type BreakerSender struct {
	next     Sender
	breakers *circuitbreaker.Manager
}

func NewBreakerSender(next Sender, template circuitbreaker.Config, logger *zap.Logger) *BreakerSender {
	template.IsFailure = func(err error) bool { return !errors.Is(err, ErrRejected) }
	return &BreakerSender{next: next, breakers: circuitbreaker.NewManager(template, logger)}
}

func (s *BreakerSender) Send(ctx context.Context, d Delivery) error {
	cb, err := s.breakers.Get(string(d.Channel))
	if err != nil {
		return err
	}
	return cb.Execute(ctx, func(ctx context.Context) error {
		return s.next.Send(ctx, d)
	})
}

// Health reports the breaker of every channel used so far.
func (s *BreakerSender) Health() []circuitbreaker.Health {
	return s.breakers.Health()
}
