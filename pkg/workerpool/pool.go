// Package workerpool runs tasks on a bounded set of workers with retry and linear backoff.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrStopped   = errors.New("workerpool: stopped")
	ErrQueueFull = errors.New("workerpool: queue full")
)

// Task is one unit of work. Run may be called more than once when it fails.
type Task struct {
	ID  string
	Run func(ctx context.Context) error

	ctx  context.Context
	done func(Result)
}

type Result struct {
	TaskID   string
	Err      error
	Attempts int
}

type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize bounds the number of waiting tasks
	QueueSize int
	// MaxRetries is how often a failed task is retried
	MaxRetries int
	// RetryDelay is multiplied by the attempt number between retries
	RetryDelay time.Duration
	// Retryable filters errors worth retrying; nil retries everything
	Retryable func(error) bool
	// ShutdownTimeout bounds how long Stop waits for in-flight tasks
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:         8,
		QueueSize:       1024,
		MaxRetries:      2,
		RetryDelay:      100 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

type Pool struct {
	config Config
	logger *zap.Logger

	tasks chan *Task
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	active    atomic.Int64
	depth     atomic.Int64
}

func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config: cfg,
		logger: logger,
		tasks:  make(chan *Task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit enqueues t without blocking. done, if not nil, receives the final result.
func (p *Pool) Submit(ctx context.Context, t *Task, done func(Result)) error {
	if t == nil || t.Run == nil {
		return fmt.Errorf("workerpool: task has no Run func")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	t.ctx, t.done = ctx, done
	select {
	case p.tasks <- t:
		p.submitted.Add(1)
		p.depth.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// RunAll enqueues every task, blocking while the queue is full, and waits for all of them.
// Results are in task order. Tasks that could not be enqueued carry the enqueue error.
func (p *Pool) RunAll(ctx context.Context, tasks []*Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		done := func(r Result) {
			results[i] = r
			wg.Done()
		}
		if err := p.enqueue(ctx, t, done); err != nil {
			results[i] = Result{TaskID: t.ID, Err: err}
			wg.Done()
		}
	}
	wg.Wait()
	return results
}

func (p *Pool) enqueue(ctx context.Context, t *Task, done func(Result)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	t.ctx, t.done = ctx, done
	select {
	case p.tasks <- t:
		p.submitted.Add(1)
		p.depth.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrStopped
	}
}

// Stop rejects new tasks and waits, up to the shutdown timeout, for queued ones.
func (p *Pool) Stop() {
	// cancel first so blocked enqueues release the read lock
	p.cancel()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		p.depth.Add(-1)
		p.active.Add(1)
		res := p.process(t)
		p.active.Add(-1)
		if res.Err != nil {
			p.failed.Add(1)
			p.logger.Error("task failed",
				zap.String("task_id", t.ID),
				zap.Int("worker_id", id),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Err))
		} else {
			p.completed.Add(1)
		}
		if t.done != nil {
			t.done(res)
		}
	}
}

func (p *Pool) process(t *Task) Result {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res := Result{TaskID: t.ID}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		res.Attempts++
		res.Err = t.Run(ctx)
		if res.Err == nil || attempt >= p.config.MaxRetries {
			return res
		}
		if p.config.Retryable != nil && !p.config.Retryable(res.Err) {
			return res
		}
		p.retried.Add(1)
		p.logger.Debug("retrying task",
			zap.String("task_id", t.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(res.Err))
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
		}
	}
}

type Stats struct {
	Submitted     int64
	Completed     int64
	Failed        int64
	Retried       int64
	Active        int64
	QueueDepth    int64
	QueueCapacity int
	Workers       int
}

func (p *Pool) Stats() Stats {
	return Stats{
		Submitted:     p.submitted.Load(),
		Completed:     p.completed.Load(),
		Failed:        p.failed.Load(),
		Retried:       p.retried.Load(),
		Active:        p.active.Load(),
		QueueDepth:    p.depth.Load(),
		QueueCapacity: p.config.QueueSize,
		Workers:       p.config.Workers,
	}
}

// IsHealthy reports whether the queue is below 90% of its capacity.
func (p *Pool) IsHealthy() bool {
	s := p.Stats()
	return float64(s.QueueDepth)/float64(s.QueueCapacity) < 0.9
}
