package circuitbreaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/circuitbreaker"
)

var errGateway = errors.New("gateway unavailable")

func failing(context.Context) error { return errGateway }
func ok(context.Context) error      { return nil }

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	var transitions []circuitbreaker.State
	cfg := circuitbreaker.DefaultConfig("sms")
	cfg.ConsecutiveFailures = 3
	cfg.Timeout = time.Hour
	cfg.OnStateChange = func(_ string, to circuitbreaker.State) { transitions = append(transitions, to) }
	cb, err := circuitbreaker.New(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, failing), errGateway)
	}
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
	assert.Equal(t, []circuitbreaker.State{circuitbreaker.StateOpen}, transitions)

	called := false
	err = cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.False(t, called)
}

func TestHalfOpenRecovers(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig("push")
	cfg.ConsecutiveFailures = 1
	cfg.MaxRequests = 1
	cfg.Timeout = 10 * time.Millisecond
	cb, err := circuitbreaker.New(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Equal(t, circuitbreaker.StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestIgnoredErrorsDoNotTrip(t *testing.T) {
	rejected := errors.New("recipient opted out")
	cfg := circuitbreaker.DefaultConfig("email")
	cfg.ConsecutiveFailures = 1
	cfg.IsFailure = func(err error) bool { return !errors.Is(err, rejected) }
	cb, err := circuitbreaker.New(cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return rejected }), rejected)
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestManagerReusesBreakers(t *testing.T) {
	m := circuitbreaker.NewManager(circuitbreaker.DefaultConfig(""), nil)
	a, err := m.Get("sms")
	require.NoError(t, err)
	b, err := m.Get("sms")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "sms", a.Name())

	_, err = m.Get("push")
	require.NoError(t, err)
	health := m.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "push", health[0].Name)
	assert.Equal(t, circuitbreaker.StateClosed, health[1].State)
}
