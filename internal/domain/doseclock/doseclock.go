// Package doseclock expands a medication plan into the concrete dose instants expected
// inside a time window. Everything here is pure: no I/O, no hidden clock.
package doseclock

import (
	"fmt"
	"iter"
	"slices"
	"time"
)

const (
	// DateLayout is the wire form of calendar dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the wire form of clock times.
	TimeLayout = "15:04"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// On places the time of day on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// ParseTimeOfDay accepts strictly "HH:MM" on a 24 hour clock.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, okH := twoDigits(s[0:2])
	m, okM := twoDigits(s[3:5])
	if !okH || !okM || h > 23 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time %q: want HH:MM", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// ParseDate parses a "2006-01-02" calendar date. The result is midnight UTC and only its
// year, month and day are meaningful.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// DateKey is the calendar date of t in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// civil strips t down to its calendar date in its own location.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Plan is the recurrence definition of a schedule.
type Plan struct {
	Times    []TimeOfDay
	AsNeeded bool
	// Start is the first calendar date with doses.
	Start time.Time
	// End is the last calendar date with doses; zero means open-ended.
	End time.Time
}

// NewPlan validates and normalizes the string form of a plan. Times are sorted and
// de-duplicated.
func NewPlan(times []string, asNeeded bool, start, end string) (Plan, error) {
	p := Plan{AsNeeded: asNeeded}
	for _, s := range times {
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return Plan{}, err
		}
		p.Times = append(p.Times, t)
	}
	slices.SortFunc(p.Times, func(a, b TimeOfDay) int { return a.minutes() - b.minutes() })
	p.Times = slices.Compact(p.Times)

	var err error
	if p.Start, err = ParseDate(start); err != nil {
		return Plan{}, err
	}
	if end != "" {
		if p.End, err = ParseDate(end); err != nil {
			return Plan{}, err
		}
		if p.End.Before(p.Start) {
			return Plan{}, fmt.Errorf("end date %s is before start date %s", end, start)
		}
	}
	return p, nil
}

// Contains reports whether the plan has a dose at tod.
func (p Plan) Contains(tod TimeOfDay) bool {
	return slices.Contains(p.Times, tod)
}

// activeOn reports whether the calendar date of day lies within [Start, End].
func (p Plan) activeOn(day time.Time) bool {
	d := civil(day)
	if d.Before(civil(p.Start)) {
		return false
	}
	return p.End.IsZero() || !d.After(civil(p.End))
}

// Dose is one expected administration.
type Dose struct {
	Time TimeOfDay
	At   time.Time
}

// Date is the calendar date the dose belongs to.
func (d Dose) Date() string { return DateKey(d.At) }

// ExpectedDoses yields, in chronological order, every dose of plan whose instant lies in
// [max(windowStart, now), windowEnd). The window is half-open so back-to-back windows never
// share a dose. All instants are built in now's location. As-needed plans yield nothing.
func ExpectedDoses(plan Plan, now, windowStart, windowEnd time.Time) iter.Seq[Dose] {
	return func(yield func(Dose) bool) {
		if plan.AsNeeded || len(plan.Times) == 0 {
			return
		}
		loc := now.Location()
		lo := windowStart.In(loc)
		if lo.Before(now) {
			lo = now
		}
		hi := windowEnd.In(loc)
		if !hi.After(lo) {
			return
		}

		day := time.Date(lo.Year(), lo.Month(), lo.Day(), 0, 0, 0, 0, loc)
		for !day.After(hi) {
			if plan.activeOn(day) {
				for _, tod := range plan.Times {
					at := tod.On(day)
					if at.Before(lo) || !at.Before(hi) {
						continue
					}
					if !yield(Dose{Time: tod, At: at}) {
						return
					}
				}
			}
			day = day.AddDate(0, 0, 1)
		}
	}
}

// ActiveDays counts the calendar dates in [date(from), date(to)] on which plan is active.
func ActiveDays(plan Plan, from, to time.Time) int {
	lo, hi := civil(from), civil(to)
	if s := civil(plan.Start); s.After(lo) {
		lo = s
	}
	if !plan.End.IsZero() {
		if e := civil(plan.End); e.Before(hi) {
			hi = e
		}
	}
	if hi.Before(lo) {
		return 0
	}
	return int(hi.Sub(lo)/(24*time.Hour)) + 1
}

// ExpectedCount is the number of scheduled doses in [date(from), date(to)].
func ExpectedCount(plan Plan, from, to time.Time) int {
	if plan.AsNeeded {
		return 0
	}
	return ActiveDays(plan, from, to) * len(plan.Times)
}
