package doseclock_test

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/doseclock"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

func at(day, hm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", day+" "+hm, nairobi)
	if err != nil {
		panic(err)
	}
	return t
}

func mustPlan(t *testing.T, times []string, start, end string) doseclock.Plan {
	t.Helper()
	p, err := doseclock.NewPlan(times, false, start, end)
	require.NoError(t, err)
	return p
}

func instants(seq func(func(doseclock.Dose) bool)) []string {
	var out []string
	for d := range seq {
		out = append(out, d.At.Format("2006-01-02 15:04"))
	}
	return out
}

func TestExpectedDoses_TwiceDailyBoundary(t *testing.T) {
	plan := mustPlan(t, []string{"20:00", "08:00"}, "2026-03-10", "")
	now := at("2026-03-10", "07:00")

	got := instants(doseclock.ExpectedDoses(plan, now, now, now.Add(24*time.Hour)))

	// tomorrow 08:00 sits past the 07:00 window end
	assert.Equal(t, []string{"2026-03-10 08:00", "2026-03-10 20:00"}, got)
}

func TestExpectedDoses_PassedTimeRollsToTomorrow(t *testing.T) {
	plan := mustPlan(t, []string{"08:00", "20:00"}, "2026-03-01", "")
	now := at("2026-03-10", "09:30")

	got := instants(doseclock.ExpectedDoses(plan, now, now, now.Add(24*time.Hour)))
	assert.Equal(t, []string{"2026-03-10 20:00", "2026-03-11 08:00"}, got)
}

func TestExpectedDoses_HalfOpenWindow(t *testing.T) {
	plan := mustPlan(t, []string{"08:00"}, "2026-03-01", "")
	now := at("2026-03-10", "08:00")

	got := instants(doseclock.ExpectedDoses(plan, now, now, now.Add(24*time.Hour)))
	assert.Equal(t, []string{"2026-03-10 08:00"}, got, "start is inclusive, end is exclusive")
}

func TestExpectedDoses_Deterministic(t *testing.T) {
	plan := mustPlan(t, []string{"06:00", "12:00", "18:00", "23:30"}, "2026-03-01", "2026-04-01")
	now := at("2026-03-10", "13:15")
	seq := doseclock.ExpectedDoses(plan, now, now.Add(-time.Hour), now.Add(72*time.Hour))

	first := instants(seq)
	second := instants(seq)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.True(t, slices.IsSorted(first))
}

func TestExpectedDoses_AsNeededYieldsNothing(t *testing.T) {
	plan, err := doseclock.NewPlan(nil, true, "2026-03-01", "")
	require.NoError(t, err)
	now := at("2026-03-10", "00:00")

	for _, window := range []time.Duration{time.Hour, 24 * time.Hour, 30 * 24 * time.Hour} {
		assert.Empty(t, instants(doseclock.ExpectedDoses(plan, now, now, now.Add(window))))
	}
	assert.Zero(t, doseclock.ExpectedCount(plan, now.AddDate(0, 0, -30), now))
}

func TestExpectedDoses_WindowInThePast(t *testing.T) {
	plan := mustPlan(t, []string{"08:00"}, "2026-03-01", "")
	now := at("2026-03-10", "12:00")

	assert.Empty(t, instants(doseclock.ExpectedDoses(plan, now, now.Add(-48*time.Hour), now.Add(-time.Hour))))
	assert.Empty(t, instants(doseclock.ExpectedDoses(plan, now, now, now)))
}

func TestExpectedDoses_RespectsStartAndEnd(t *testing.T) {
	plan := mustPlan(t, []string{"08:00", "20:00"}, "2026-03-11", "2026-03-12")
	now := at("2026-03-10", "00:00")

	got := instants(doseclock.ExpectedDoses(plan, now, now, now.Add(5*24*time.Hour)))
	assert.Equal(t, []string{
		"2026-03-11 08:00", "2026-03-11 20:00",
		"2026-03-12 08:00", "2026-03-12 20:00",
	}, got)
}

func TestExpectedDoses_EarlyBreak(t *testing.T) {
	plan := mustPlan(t, []string{"08:00", "20:00"}, "2026-03-01", "")
	now := at("2026-03-10", "00:00")

	n := 0
	for range doseclock.ExpectedDoses(plan, now, now, now.Add(10*24*time.Hour)) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestNewPlan(t *testing.T) {
	p, err := doseclock.NewPlan([]string{"20:00", "08:00", "08:00"}, false, "2026-03-01", "")
	require.NoError(t, err)
	assert.Equal(t, []doseclock.TimeOfDay{{Hour: 8}, {Hour: 20}}, p.Times)
	assert.True(t, p.Contains(doseclock.TimeOfDay{Hour: 20}))

	_, err = doseclock.NewPlan([]string{"8:00"}, false, "2026-03-01", "")
	assert.Error(t, err)
	_, err = doseclock.NewPlan([]string{"24:00"}, false, "2026-03-01", "")
	assert.Error(t, err)
	_, err = doseclock.NewPlan([]string{"08:00"}, false, "03/01/2026", "")
	assert.Error(t, err)
	_, err = doseclock.NewPlan([]string{"08:00"}, false, "2026-03-02", "2026-03-01")
	assert.Error(t, err)
}

func TestActiveDaysAndExpectedCount(t *testing.T) {
	plan := mustPlan(t, []string{"08:00", "20:00"}, "2026-03-05", "2026-03-20")
	now := at("2026-03-10", "15:00")

	assert.Equal(t, 6, doseclock.ActiveDays(plan, now.AddDate(0, 0, -30), now))
	assert.Equal(t, 12, doseclock.ExpectedCount(plan, now.AddDate(0, 0, -30), now))
	assert.Equal(t, 1, doseclock.ActiveDays(plan, now, now))
	assert.Zero(t, doseclock.ActiveDays(plan, at("2026-03-21", "00:00"), at("2026-03-30", "00:00")))
}

func TestDateKeyUsesOwnLocation(t *testing.T) {
	late := at("2026-03-10", "23:30")
	assert.Equal(t, "2026-03-10", doseclock.DateKey(late))
	assert.Equal(t, "2026-03-10", doseclock.DateKey(late.In(time.UTC)))
	assert.Equal(t, "2026-03-11", doseclock.DateKey(at("2026-03-11", "02:00")))
}
