// Package reminders turns due refill reminders and imminent doses into notifications and
// pushes them to the patient's delivery channels.
package reminders

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/adherence"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/refill"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/settings"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/workerpool"
)

type Refills interface {
	Due(ctx context.Context) ([]*refill.Reminder, error)
	MarkSent(ctx context.Context, id string) (*refill.Reminder, error)
}

type Doses interface {
	UpcomingDoses(ctx context.Context, patientID string, withinHours int) ([]adherence.UpcomingDose, error)
}

type Patients interface {
	ActivePatients(ctx context.Context) ([]string, error)
}

type Notifier interface {
	Create(ctx context.Context, d notification.Draft) (*notification.Notification, error)
}

type Preferences interface {
	Get(ctx context.Context, userID string) (*settings.Preferences, error)
}

// Deduper claims a key once. The first caller gets true.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
}

type Instruments interface {
	ReminderSent(kind string)
	DeliveryFailed(channel string)
	ObserveSweep(d time.Duration)
}

type nopInstruments struct{}

func (nopInstruments) ReminderSent(string)        {}
func (nopInstruments) DeliveryFailed(string)      {}
func (nopInstruments) ObserveSweep(time.Duration) {}

const (
	KindRefill = "refill"
	KindDose   = "dose"
)

var channels = []settings.Channel{settings.ChannelPush, settings.ChannelSMS, settings.ChannelEmail}

type Config struct {
	// Interval between sweeps
	Interval time.Duration
	// DoseLead is how long before a dose it is announced
	DoseLead time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		DoseLead: 15 * time.Minute,
	}
}

// Deps groups the collaborators of a Sweeper.
type Deps struct {
	Refills     Refills
	Doses       Doses
	Patients    Patients
	Notifier    Notifier
	Preferences Preferences
	Deduper     Deduper
	Sender      Sender
	Pool        *workerpool.Pool
	Clock       clock.Clock
	Instruments Instruments
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	RefillsDue       int `json:"refills_due"`
	RefillsSent      int `json:"refills_sent"`
	DosesAnnounced   int `json:"doses_announced"`
	Deliveries       int `json:"deliveries"`
	DeliveryFailures int `json:"delivery_failures"`
	QuietSkipped     int `json:"quiet_skipped"`
	Failed           int `json:"failed"`
}

type Sweeper struct {
	config Config
	deps   Deps
	logger *zap.Logger
	tracer trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sweeps atomic.Int64

	// doses before through have been offered to the claim already
	mu      sync.Mutex
	through time.Time
}

func NewSweeper(cfg Config, deps Deps, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.DoseLead < 0 {
		cfg.DoseLead = def.DoseLead
	}
	if deps.Instruments == nil {
		deps.Instruments = nopInstruments{}
	}
	if deps.Sender == nil {
		deps.Sender = NewLogSender(logger)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New(time.UTC)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		config: cfg,
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer("reminder-sweeper"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("reminder sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("dose_lead", s.config.DoseLead))
}

func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("reminder sweeper stopped", zap.Int64("sweeps", s.sweeps.Load()))
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("reminder sweep failed", zap.Error(err))
			}
		}
	}
}

// tally is shared by the tasks of one sweep.
type tally struct {
	refillsSent      atomic.Int64
	dosesAnnounced   atomic.Int64
	deliveries       atomic.Int64
	deliveryFailures atomic.Int64
	quietSkipped     atomic.Int64
	doseErrors       atomic.Int64
}

// SweepOnce announces every due refill and every pending dose between the previous sweep's
// horizon and now+lead+interval. Item failures are logged and counted; only failing to
// enumerate the work fails the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "reminder_sweep")
	defer span.End()
	started := time.Now()
	defer func() { s.deps.Instruments.ObserveSweep(time.Since(started)) }()
	s.sweeps.Add(1)

	due, err := s.deps.Refills.Due(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list due refills: %w", err)
	}
	patients, err := s.deps.Patients.ActivePatients(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list active patients: %w", err)
	}

	var t tally
	tasks := make([]*workerpool.Task, 0, len(due)+len(patients))
	for _, r := range due {
		tasks = append(tasks, &workerpool.Task{
			ID:  "refill:" + r.ID,
			Run: func(ctx context.Context) error { return s.remindRefill(ctx, r, &t) },
		})
	}
	now := s.deps.Clock.Now()
	from, to := s.doseWindow(now)
	for _, patientID := range patients {
		tasks = append(tasks, &workerpool.Task{
			ID: "doses:" + patientID,
			Run: func(ctx context.Context) error {
				err := s.announceDoses(ctx, patientID, now, from, to, &t)
				if err != nil {
					t.doseErrors.Add(1)
				}
				return err
			},
		})
	}

	res := &SweepResult{RefillsDue: len(due)}
	for _, r := range s.run(ctx, tasks) {
		if r.Err != nil {
			res.Failed++
			s.logger.Error("reminder task failed",
				zap.String("task_id", r.TaskID),
				zap.Int("attempts", r.Attempts),
				zap.Error(r.Err))
		}
	}
	res.RefillsSent = int(t.refillsSent.Load())
	res.DosesAnnounced = int(t.dosesAnnounced.Load())
	res.Deliveries = int(t.deliveries.Load())
	res.DeliveryFailures = int(t.deliveryFailures.Load())
	res.QuietSkipped = int(t.quietSkipped.Load())
	if t.doseErrors.Load() == 0 && ctx.Err() == nil {
		s.advance(to)
	}

	span.SetAttributes(
		attribute.Int("refills_due", res.RefillsDue),
		attribute.Int("doses_announced", res.DosesAnnounced),
		attribute.Int("failed", res.Failed))
	if res.RefillsDue > 0 || res.DosesAnnounced > 0 || res.Failed > 0 {
		s.logger.Info("reminder sweep finished",
			zap.Int("refills_due", res.RefillsDue),
			zap.Int("refills_sent", res.RefillsSent),
			zap.Int("doses_announced", res.DosesAnnounced),
			zap.Int("deliveries", res.Deliveries),
			zap.Int("delivery_failures", res.DeliveryFailures),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}

// run executes tasks on the pool, or inline when no pool was supplied.
func (s *Sweeper) run(ctx context.Context, tasks []*workerpool.Task) []workerpool.Result {
	if s.deps.Pool != nil {
		return s.deps.Pool.RunAll(ctx, tasks)
	}
	out := make([]workerpool.Result, len(tasks))
	for i, t := range tasks {
		out[i] = workerpool.Result{TaskID: t.ID, Err: t.Run(ctx), Attempts: 1}
	}
	return out
}

func (s *Sweeper) remindRefill(ctx context.Context, r *refill.Reminder, t *tally) error {
	// The claim covers a crash between Create and MarkSent; a new cycle gets a new key.
	key := fmt.Sprintf("refill:%s:%s", r.ID, r.NextRefillDate)
	fresh, err := s.claim(ctx, key)
	if err != nil {
		return err
	}
	if fresh {
		n, err := s.deps.Notifier.Create(ctx, notification.Draft{
			Recipient: notification.ToUser(r.PatientID),
			Type:      notification.TypeMedicationReminder,
			Title:     "Refill reminder",
			Message:   fmt.Sprintf("Your %s is due for a refill on %s.", r.MedicationName, r.NextRefillDate),
			Priority:  notification.PriorityNormal,
			Data: map[string]any{
				"kind":             KindRefill,
				"refill_id":        r.ID,
				"schedule_id":      r.ScheduleID,
				"next_refill_date": r.NextRefillDate,
				"medication_name":  r.MedicationName,
			},
		})
		if err != nil {
			return err
		}
		s.deliver(ctx, n, t)
		s.deps.Instruments.ReminderSent(KindRefill)
	}
	if _, err := s.deps.Refills.MarkSent(ctx, r.ID); err != nil {
		return err
	}
	t.refillsSent.Add(1)
	return nil
}

// doseWindow is [from, to) for this sweep. It starts where the last clean sweep ended so a
// late or skipped tick leaves no gap; the first sweep after start starts at now.
func (s *Sweeper) doseWindow(now time.Time) (time.Time, time.Time) {
	to := now.Add(s.config.DoseLead + s.config.Interval)
	s.mu.Lock()
	from := s.through
	s.mu.Unlock()
	if from.Before(now) {
		from = now
	}
	if from.After(to) {
		from = to
	}
	return from, to
}

func (s *Sweeper) advance(to time.Time) {
	s.mu.Lock()
	if to.After(s.through) {
		s.through = to
	}
	s.mu.Unlock()
}

func (s *Sweeper) announceDoses(ctx context.Context, patientID string, now, from, to time.Time, t *tally) error {
	hours := int(math.Ceil(to.Sub(now).Hours()))
	if hours < 1 {
		hours = 1
	}
	doses, err := s.deps.Doses.UpcomingDoses(ctx, patientID, hours)
	if err != nil {
		return err
	}
	for _, d := range doses {
		if d.State != adherence.StatePending || d.At.Before(from) || !d.At.Before(to) {
			continue
		}
		fresh, err := s.claim(ctx, fmt.Sprintf("dose:%s:%s:%s", d.ScheduleID, d.Date, d.ScheduledTime))
		if err != nil {
			return err
		}
		if !fresh {
			continue
		}
		msg := fmt.Sprintf("Time to take %s at %s.", d.MedicationName, d.ScheduledTime)
		if d.Dosage != "" {
			msg = fmt.Sprintf("Time to take %s (%s) at %s.", d.MedicationName, d.Dosage, d.ScheduledTime)
		}
		n, err := s.deps.Notifier.Create(ctx, notification.Draft{
			Recipient: notification.ToUser(patientID),
			Type:      notification.TypeMedicationReminder,
			Title:     "Medication reminder",
			Message:   msg,
			Priority:  notification.PriorityHigh,
			Data: map[string]any{
				"kind":           KindDose,
				"schedule_id":    d.ScheduleID,
				"dose_date":      d.Date,
				"scheduled_time": d.ScheduledTime,
			},
		})
		if err != nil {
			return err
		}
		s.deliver(ctx, n, t)
		s.deps.Instruments.ReminderSent(KindDose)
		t.dosesAnnounced.Add(1)
	}
	return nil
}

func (s *Sweeper) claim(ctx context.Context, key string) (bool, error) {
	if s.deps.Deduper == nil {
		return true, nil
	}
	return s.deps.Deduper.Claim(ctx, key)
}

// deliver pushes n to every channel the user allows. The notification is already stored,
// so delivery problems are counted but never fail the task.
func (s *Sweeper) deliver(ctx context.Context, n *notification.Notification, t *tally) {
	prefs := settings.Defaults(n.UserID)
	if s.deps.Preferences != nil {
		p, err := s.deps.Preferences.Get(ctx, n.UserID)
		if err != nil {
			s.logger.Warn("preferences unavailable, using defaults",
				zap.String("user_id", n.UserID), zap.Error(err))
		} else {
			prefs = p
		}
	}
	if prefs.InQuietHours(s.deps.Clock.Now()) {
		t.quietSkipped.Add(1)
		return
	}
	for _, ch := range channels {
		if !prefs.Allows(ch) {
			continue
		}
		err := s.deps.Sender.Send(ctx, Delivery{
			UserID:         n.UserID,
			Channel:        ch,
			NotificationID: n.ID,
			Title:          n.Title,
			Message:        n.Message,
			Data:           n.Data,
		})
		if err != nil {
			t.deliveryFailures.Add(1)
			s.deps.Instruments.DeliveryFailed(string(ch))
			s.logger.Error("reminder delivery failed",
				zap.String("user_id", n.UserID),
				zap.String("channel", string(ch)),
				zap.String("notification_id", n.ID),
				zap.Error(err))
			continue
		}
		t.deliveries.Add(1)
	}
}
