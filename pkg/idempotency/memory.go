package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is the in-process counterpart of Inbox for single-instance deployments and tests.
// Entries never expire.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

func (m *Memory) Process(ctx context.Context, key, handler string, payload json.RawMessage, fn Func) (*Result, error) {
	m.mu.Lock()
	prev, seen := m.entries[key]
	if seen {
		switch prev.Status {
		case StatusFinished:
			out := prev.Result
			m.mu.Unlock()
			return &Result{Output: out}, nil
		case StatusFailed:
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s failed permanently", ErrDuplicate, key)
		case StatusStarted:
			m.mu.Unlock()
			return nil, ErrInProgress
		}
	}
	e := &Entry{Key: key, Handler: handler, Status: StatusStarted, Payload: payload}
	m.entries[key] = e
	m.mu.Unlock()

	out, err := fn(ctx, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		e.Status = StatusRecoverable
		if Terminal(err) {
			e.Status = StatusFailed
		}
		return nil, err
	}
	e.Status = StatusFinished
	e.Result = out
	return &Result{IsNew: !seen, WasRecovered: seen, Output: out}, nil
}

func (m *Memory) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.entries[key] = &Entry{Key: key, Handler: "claim", Status: StatusFinished}
	return true, nil
}

// Status returns the status recorded for key, if any.
func (m *Memory) Status(key string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	return e.Status, true
}
