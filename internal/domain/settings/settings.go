// Package settings holds per-user notification preferences. Reads go through an injected
// TTL cache which is invalidated after every write.
package settings

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/doseclock"
)

// Channel is a delivery channel a preference can switch off.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

type Preferences struct {
	UserID          string    `json:"user_id"`
	PushEnabled     bool      `json:"push_enabled"`
	SMSEnabled      bool      `json:"sms_enabled"`
	EmailEnabled    bool      `json:"email_enabled"`
	QuietHoursStart string    `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   string    `json:"quiet_hours_end,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Defaults apply to users who never saved preferences: push only, no quiet hours.
func Defaults(userID string) *Preferences {
	return &Preferences{UserID: userID, PushEnabled: true}
}

func (p *Preferences) Allows(ch Channel) bool {
	switch ch {
	case ChannelPush:
		return p.PushEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelEmail:
		return p.EmailEnabled
	}
	return false
}

// InQuietHours reports whether the wall-clock time of now lies in [start, end). A window
// whose start is after its end wraps past midnight.
func (p *Preferences) InQuietHours(now time.Time) bool {
	if p.QuietHoursStart == "" || p.QuietHoursEnd == "" {
		return false
	}
	start, err1 := doseclock.ParseTimeOfDay(p.QuietHoursStart)
	end, err2 := doseclock.ParseTimeOfDay(p.QuietHoursEnd)
	if err1 != nil || err2 != nil || start == end {
		return false
	}
	m := now.Hour()*60 + now.Minute()
	s := start.Hour*60 + start.Minute
	e := end.Hour*60 + end.Minute
	if s < e {
		return m >= s && m < e
	}
	return m >= s || m < e
}

// Repository returns apperr.NotFoundError from Get when the user has no stored row.
type Repository interface {
	Get(ctx context.Context, userID string) (*Preferences, error)
	Upsert(ctx context.Context, p *Preferences) error
}

// Cache is a byte-oriented TTL cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type Service struct {
	repo   Repository
	cache  Cache
	ttl    time.Duration
	clock  clock.Clock
	logger *zap.Logger
}

func NewService(repo Repository, cache Cache, ttl time.Duration, clk clock.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cache: cache, ttl: ttl, clock: clk, logger: logger}
}

func cacheKey(userID string) string { return "prefs:" + userID }

// Get returns the user's preferences, falling back to Defaults when none are stored. Cache
// failures degrade to a repository read.
func (s *Service) Get(ctx context.Context, userID string) (*Preferences, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation("user_id", "required")
	}
	key := cacheKey(userID)
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("preferences cache read failed", zap.String("user_id", userID), zap.Error(err))
	} else if ok {
		var p Preferences
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
	}

	p, err := s.repo.Get(ctx, userID)
	switch {
	case apperr.IsNotFound(err):
		p = Defaults(userID)
	case err != nil:
		return nil, apperr.Dependency("get preferences", err)
	}

	if raw, err := json.Marshal(p); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn("preferences cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return p, nil
}

// Update stores p and invalidates the cached copy.
func (s *Service) Update(ctx context.Context, p *Preferences) (*Preferences, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, apperr.Validation("user_id", "required")
	}
	if (p.QuietHoursStart == "") != (p.QuietHoursEnd == "") {
		return nil, apperr.Validation("quiet_hours", "start and end must be set together")
	}
	for field, v := range map[string]string{"quiet_hours_start": p.QuietHoursStart, "quiet_hours_end": p.QuietHoursEnd} {
		if v == "" {
			continue
		}
		if _, err := doseclock.ParseTimeOfDay(v); err != nil {
			return nil, apperr.Validation(field, err.Error())
		}
	}

	p.UpdatedAt = s.clock.Now()
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, apperr.Dependency("update preferences", err)
	}
	if err := s.cache.Invalidate(ctx, cacheKey(p.UserID)); err != nil {
		s.logger.Error("preferences cache invalidation failed", zap.String("user_id", p.UserID), zap.Error(err))
	}
	return p, nil
}
