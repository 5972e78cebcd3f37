package reminders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/adherence"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/refill"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/schedule"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/settings"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/memory"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/reminders"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/circuitbreaker"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/idempotency"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/workerpool"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []reminders.Delivery
	err  error
}

func (s *recordingSender) Send(_ context.Context, d reminders.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, d)
	return nil
}

func (s *recordingSender) deliveries() []reminders.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reminders.Delivery(nil), s.sent...)
}

type staticPrefs map[string]*settings.Preferences

func (p staticPrefs) Get(_ context.Context, userID string) (*settings.Preferences, error) {
	if v, ok := p[userID]; ok {
		return v, nil
	}
	return settings.Defaults(userID), nil
}

type fixture struct {
	clock     *clock.Managed
	schedules *schedule.Service
	ledger    *adherence.Ledger
	refills   *refill.Tracker
	center    *notification.Center
	inbox     *idempotency.Memory
	sender    *recordingSender
	prefs     staticPrefs
	sweeper   *reminders.Sweeper
}

// 07:45 with a 15 minute lead and one minute interval announces the 08:00 dose.
var march10at0745 = time.Date(2026, 3, 10, 7, 45, 0, 0, time.UTC)

func newFixture(t *testing.T, pool *workerpool.Pool) *fixture {
	t.Helper()
	clk := clock.NewManaged(march10at0745)
	schedules := schedule.NewService(memory.NewScheduleRepo(), clk, nil)
	f := &fixture{
		clock:     clk,
		schedules: schedules,
		ledger:    adherence.NewLedger(memory.NewDoseRepo(), schedules, clk, nil),
		refills:   refill.NewTracker(memory.NewRefillRepo(), clk, nil),
		center:    notification.NewCenter(memory.NewNotificationRepo(), clk, nil),
		inbox:     idempotency.NewMemory(),
		sender:    &recordingSender{},
		prefs:     staticPrefs{},
	}
	f.sweeper = reminders.NewSweeper(reminders.Config{Interval: time.Minute, DoseLead: 15 * time.Minute}, reminders.Deps{
		Refills:     f.refills,
		Doses:       f.ledger,
		Patients:    schedules,
		Notifier:    f.center,
		Preferences: f.prefs,
		Deduper:     f.inbox,
		Sender:      f.sender,
		Pool:        pool,
		Clock:       clk,
	}, nil)
	return f
}

func (f *fixture) twiceDaily(t *testing.T, patient string) *schedule.Schedule {
	t.Helper()
	s, err := f.schedules.Create(context.Background(), &schedule.Schedule{
		PatientID:      patient,
		MedicationName: "Metformin",
		Dosage:         "850mg",
		Frequency:      schedule.TwiceDaily,
		Times:          []string{"08:00", "20:00"},
		StartDate:      "2026-03-10",
	})
	require.NoError(t, err)
	return s
}

func (f *fixture) feed(t *testing.T, user string) []*notification.Notification {
	t.Helper()
	list, err := f.center.List(context.Background(), user, 0)
	require.NoError(t, err)
	return list
}

func TestSweepAnnouncesDoseOnce(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Workers: 2}, nil)
	pool.Start()
	defer pool.Stop()
	f := newFixture(t, pool)
	s := f.twiceDaily(t, "p-1")
	ctx := context.Background()

	res, err := f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DosesAnnounced)
	assert.Equal(t, 1, res.Deliveries)
	assert.Zero(t, res.Failed)

	feed := f.feed(t, "p-1")
	require.Len(t, feed, 1)
	assert.Equal(t, notification.TypeMedicationReminder, feed[0].Type)
	assert.Equal(t, reminders.KindDose, feed[0].Data["kind"])
	assert.Equal(t, s.ID, feed[0].Data["schedule_id"])
	assert.Equal(t, "08:00", feed[0].Data["scheduled_time"])

	sent := f.sender.deliveries()
	require.Len(t, sent, 1)
	assert.Equal(t, settings.ChannelPush, sent[0].Channel)
	assert.Equal(t, feed[0].ID, sent[0].NotificationID)

	res, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.DosesAnnounced, "claim guards against a second announcement")
	assert.Len(t, f.feed(t, "p-1"), 1)
}

func TestSweepSkipsDosesOutsideWindow(t *testing.T) {
	f := newFixture(t, nil)
	f.twiceDaily(t, "p-1")
	f.clock.Set(time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC))

	res, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.DosesAnnounced)
	assert.Empty(t, f.feed(t, "p-1"))
}

func TestSweepLateTickLeavesNoGap(t *testing.T) {
	f := newFixture(t, nil)
	f.twiceDaily(t, "p-1")
	ctx := context.Background()

	// 07:44 reaches up to 08:00 exclusive.
	f.clock.Set(time.Date(2026, 3, 10, 7, 44, 0, 0, time.UTC))
	res, err := f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.DosesAnnounced)

	// One second late: the window must still start at 08:00.
	f.clock.Set(time.Date(2026, 3, 10, 7, 45, 1, 0, time.UTC))
	res, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DosesAnnounced)
	require.Len(t, f.feed(t, "p-1"), 1)
	assert.Equal(t, "08:00", f.feed(t, "p-1")[0].Data["scheduled_time"])
}

func TestSweepSkippedTicksCatchUp(t *testing.T) {
	f := newFixture(t, nil)
	f.twiceDaily(t, "p-1")
	ctx := context.Background()

	f.clock.Set(time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC))
	res, err := f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.DosesAnnounced)

	// Several ticks lost; the dose is now only five minutes out.
	f.clock.Set(time.Date(2026, 3, 10, 7, 55, 0, 0, time.UTC))
	res, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DosesAnnounced)

	f.clock.Advance(time.Minute)
	res, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.DosesAnnounced)
	assert.Len(t, f.feed(t, "p-1"), 1)
}

func TestSweepFirstRunPicksUpImminentDose(t *testing.T) {
	f := newFixture(t, nil)
	f.twiceDaily(t, "p-1")

	// A restart at 07:58 is inside the lead; the dose is still pending.
	f.clock.Set(time.Date(2026, 3, 10, 7, 58, 0, 0, time.UTC))
	res, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DosesAnnounced)
}

func TestSweepIgnoresTakenDose(t *testing.T) {
	f := newFixture(t, nil)
	s := f.twiceDaily(t, "p-1")
	_, err := f.ledger.MarkTaken(context.Background(), adherence.Mark{ScheduleID: s.ID, PatientID: "p-1", ScheduledTime: "08:00"})
	require.NoError(t, err)

	res, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.DosesAnnounced)
}

func TestSweepSendsDueRefillAndMarksIt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r, err := f.refills.Create(ctx, &refill.Reminder{
		PatientID:        "p-2",
		ScheduleID:       "s-9",
		MedicationName:   "Lisinopril",
		DaysBeforeRefill: 3,
		NextRefillDate:   "2026-03-12",
	})
	require.NoError(t, err)

	res, err := f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RefillsDue)
	assert.Equal(t, 1, res.RefillsSent)

	got, err := f.refills.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.ReminderSent)

	feed := f.feed(t, "p-2")
	require.Len(t, feed, 1)
	assert.Equal(t, reminders.KindRefill, feed[0].Data["kind"])
	assert.Equal(t, "2026-03-12", feed[0].Data["next_refill_date"])

	res, err = f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.RefillsDue)
}

func TestSweepRefillClaimedEarlierOnlyMarksSent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r, err := f.refills.Create(ctx, &refill.Reminder{
		PatientID:        "p-2",
		ScheduleID:       "s-9",
		MedicationName:   "Lisinopril",
		DaysBeforeRefill: 1,
		NextRefillDate:   "2026-03-11",
	})
	require.NoError(t, err)
	// a previous sweep created the notification and crashed before MarkSent
	won, err := f.inbox.Claim(ctx, "refill:"+r.ID+":2026-03-11")
	require.NoError(t, err)
	require.True(t, won)

	res, err := f.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RefillsSent)
	assert.Empty(t, f.feed(t, "p-2"))

	got, err := f.refills.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.ReminderSent)
}

func TestSweepQuietHoursStoreButDoNotDeliver(t *testing.T) {
	f := newFixture(t, nil)
	f.twiceDaily(t, "p-1")
	f.prefs["p-1"] = &settings.Preferences{UserID: "p-1", PushEnabled: true, QuietHoursStart: "22:00", QuietHoursEnd: "08:00"}

	res, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DosesAnnounced)
	assert.Equal(t, 1, res.QuietSkipped)
	assert.Zero(t, res.Deliveries)
	assert.Empty(t, f.sender.deliveries())
	assert.Len(t, f.feed(t, "p-1"), 1)
}

func TestSweepDeliversOnEveryAllowedChannel(t *testing.T) {
	f := newFixture(t, nil)
	f.twiceDaily(t, "p-1")
	f.prefs["p-1"] = &settings.Preferences{UserID: "p-1", PushEnabled: true, SMSEnabled: true}

	res, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deliveries)

	var chans []settings.Channel
	for _, d := range f.sender.deliveries() {
		chans = append(chans, d.Channel)
	}
	assert.ElementsMatch(t, []settings.Channel{settings.ChannelPush, settings.ChannelSMS}, chans)
}

func TestSweepDeliveryFailureDoesNotFailTask(t *testing.T) {
	f := newFixture(t, nil)
	f.twiceDaily(t, "p-1")
	f.sender.err = errors.New("gateway down")

	res, err := f.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DosesAnnounced)
	assert.Equal(t, 1, res.DeliveryFailures)
	assert.Zero(t, res.Failed)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, nil)
	sw := reminders.NewSweeper(reminders.Config{Interval: 10 * time.Millisecond}, reminders.Deps{
		Refills:  f.refills,
		Doses:    f.ledger,
		Patients: f.schedules,
		Notifier: f.center,
		Clock:    f.clock,
	}, nil)
	sw.Start()
	time.Sleep(35 * time.Millisecond)
	sw.Stop()
}

func TestBreakerSenderOpensPerChannel(t *testing.T) {
	inner := &recordingSender{err: errors.New("sms gateway down")}
	cfg := circuitbreaker.DefaultConfig("")
	cfg.ConsecutiveFailures = 2
	cfg.Timeout = time.Hour
	s := reminders.NewBreakerSender(inner, cfg, nil)
	ctx := context.Background()
	sms := reminders.Delivery{UserID: "p-1", Channel: settings.ChannelSMS}

	for i := 0; i < 2; i++ {
		require.Error(t, s.Send(ctx, sms))
	}
	assert.ErrorIs(t, s.Send(ctx, sms), circuitbreaker.ErrOpen)

	inner.err = nil
	require.NoError(t, s.Send(ctx, reminders.Delivery{UserID: "p-1", Channel: settings.ChannelPush}))

	health := s.Health()
	require.Len(t, health, 2)
	assert.Equal(t, "push", health[0].Name)
	assert.Equal(t, circuitbreaker.StateClosed, health[0].State)
	assert.Equal(t, circuitbreaker.StateOpen, health[1].State)
}

func TestBreakerSenderIgnoresRejections(t *testing.T) {
	inner := &recordingSender{err: reminders.ErrRejected}
	cfg := circuitbreaker.DefaultConfig("")
	cfg.ConsecutiveFailures = 1
	s := reminders.NewBreakerSender(inner, cfg, nil)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, s.Send(context.Background(), reminders.Delivery{Channel: settings.ChannelEmail}), reminders.ErrRejected)
	}
	assert.Equal(t, circuitbreaker.StateClosed, s.Health()[0].State)
}
