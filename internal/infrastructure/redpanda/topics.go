package redpanda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const (
	// TopicNotificationChanges carries notification.Change records keyed by user id.
	TopicNotificationChanges = "care.notification-changes"
	// TopicDomainEvents carries upstream events turned into notifications.
	TopicDomainEvents = "care.domain-events"
	TopicDeadLetter   = "care.dead-letter"
)

type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

func DefaultTopicConfigs() []TopicConfig {
	ptr := func(s string) *string { return &s }
	return []TopicConfig{
		{
			Name:              TopicNotificationChanges,
			Partitions:        6,
			ReplicationFactor: 1,
			Configs: map[string]*string{
				"retention.ms":   ptr("86400000"), // 1 day
				"cleanup.policy": ptr("delete"),
			},
		},
		{
			Name:              TopicDomainEvents,
			Partitions:        6,
			ReplicationFactor: 1,
			Configs: map[string]*string{
				"retention.ms":   ptr("604800000"), // 7 days
				"cleanup.policy": ptr("delete"),
			},
		},
		{
			Name:              TopicDeadLetter,
			Partitions:        1,
			ReplicationFactor: 1,
			Configs: map[string]*string{
				"retention.ms":   ptr("2592000000"), // 30 days
				"cleanup.policy": ptr("delete"),
			},
		},
	}
}

type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Admin{client: kadm.NewClient(cl), logger: logger}, nil
}

// EnsureTopics creates the care topics; existing topics are left untouched.
func (a *Admin) EnsureTopics(ctx context.Context) error {
	for _, cfg := range DefaultTopicConfigs() {
		resp, err := a.client.CreateTopic(ctx, cfg.Partitions, cfg.ReplicationFactor, cfg.Configs, cfg.Name)
		switch {
		case err != nil && !errors.Is(err, kerr.TopicAlreadyExists):
			return fmt.Errorf("create topic %s: %w", cfg.Name, err)
		case errors.Is(err, kerr.TopicAlreadyExists) || errors.Is(resp.Err, kerr.TopicAlreadyExists):
			a.logger.Debug("topic exists", zap.String("topic", cfg.Name))
		case resp.Err != nil:
			return fmt.Errorf("create topic %s: %w", cfg.Name, resp.Err)
		default:
			a.logger.Info("topic created", zap.String("topic", cfg.Name), zap.Int32("partitions", cfg.Partitions))
		}
	}
	return nil
}

// Lag returns the consumer lag of group per topic and partition.
func (a *Admin) Lag(ctx context.Context, group string) (map[string]map[int32]int64, error) {
	described, err := a.client.Lag(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("consumer group lag: %w", err)
	}
	out := make(map[string]map[int32]int64)
	described.Each(func(l kadm.DescribedGroupLag) {
		for topic, partitions := range l.Lag {
			if out[topic] == nil {
				out[topic] = make(map[int32]int64)
			}
			for partition, lag := range partitions {
				out[topic][partition] = lag.Lag
			}
		}
	})
	return out, nil
}

func (a *Admin) Close() {
	a.client.Close()
}

// HealthCheck pings the cluster.
func HealthCheck(ctx context.Context, brokers []string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer cl.Close()
	if err := cl.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
