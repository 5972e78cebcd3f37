package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/redpanda"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/reminders"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/circuitbreaker"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/workerpool"
)

// NewSweeper builds the reminder sweeper with a worker pool sized by WORKERS and one
// circuit breaker per delivery channel. The pool is started and stopped with the App.
func (a *App) NewSweeper() (*reminders.Sweeper, *reminders.BreakerSender) {
	poolCfg := workerpool.DefaultConfig()
	poolCfg.Workers = a.Config.Workers
	pool := workerpool.New(poolCfg, a.Logger)
	pool.Start()
	a.OnClose(pool.Stop)

	breakerCfg := circuitbreaker.DefaultConfig("")
	breakerCfg.OnStateChange = func(name string, to circuitbreaker.State) {
		a.Metrics.BreakerState(name, string(to))
	}
	sender := reminders.NewBreakerSender(reminders.NewLogSender(a.Logger), breakerCfg, a.Logger)

	sweeper := reminders.NewSweeper(reminders.Config{
		Interval: a.Config.SweepInterval,
		DoseLead: a.Config.DoseReminderLead,
	}, reminders.Deps{
		Refills:     a.Refills,
		Doses:       a.Ledger,
		Patients:    a.Schedules,
		Notifier:    a.Center,
		Preferences: a.Settings,
		Deduper:     a.Inbox,
		Sender:      sender,
		Pool:        pool,
		Clock:       a.Clock,
		Instruments: a.Metrics,
	}, a.Logger)
	return sweeper, sender
}

// NewProducer connects a producer to KAFKA_BROKERS and closes it with the App.
func (a *App) NewProducer() (*redpanda.Producer, error) {
	cfg := redpanda.DefaultProducerConfig()
	cfg.Brokers = a.Config.KafkaBrokers
	p, err := redpanda.NewProducer(cfg, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	a.OnClose(p.Close)
	return p, nil
}

// EnsureTopics creates the care topics that do not exist yet.
func (a *App) EnsureTopics(ctx context.Context) error {
	admin, err := redpanda.NewAdmin(a.Config.KafkaBrokers, a.Logger)
	if err != nil {
		return err
	}
	defer admin.Close()
	return admin.EnsureTopics(ctx)
}

// FollowChanges consumes notification changes written by other processes and refreshes
// the local subscribers of the affected users. Every API instance needs every change, so
// each one joins its own consumer group starting at the newest offset.
func (a *App) FollowChanges() (*redpanda.Consumer, error) {
	host, _ := os.Hostname()
	cfg := redpanda.DefaultConsumerConfig()
	cfg.Brokers = a.Config.KafkaBrokers
	cfg.GroupID = fmt.Sprintf("care-api-%s-%s", host, uuid.NewString()[:8])
	cfg.Topics = []string{redpanda.TopicNotificationChanges}
	cfg.StartOffset = "latest"
	cfg.DeadLetterTopic = ""
	cfg.MaxAttempts = 1

	center := a.Center
	logger := a.Logger
	consumer, err := redpanda.NewConsumer(cfg, func(_ context.Context, msg *redpanda.Message) error {
		var ch notification.Change
		if err := json.Unmarshal(msg.Value, &ch); err != nil {
			logger.Warn("undecodable notification change", zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}
		if ch.UserID != "" {
			center.Refresh(ch.UserID)
		}
		return nil
	}, nil, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("create change consumer: %w", err)
	}
	return consumer, nil
}
