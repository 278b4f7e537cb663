package reminder

import (
	"fmt"
	"time"
)

// Kind identifies a recurrence variant.
type Kind int

const (
	KindCountdown Kind = iota + 1
	KindWeekly
	KindMonthly
	KindOneTime
)

func (k Kind) String() string {
	switch k {
	case KindCountdown:
		return "countdown"
	case KindWeekly:
		return "weekly"
	case KindMonthly:
		return "monthly"
	case KindOneTime:
		return "one_time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "countdown":
		return KindCountdown, nil
	case "weekly":
		return KindWeekly, nil
	case "monthly":
		return KindMonthly, nil
	case "one_time":
		return KindOneTime, nil
	default:
		return 0, invalid("kind", s, "unknown recurrence kind")
	}
}

// Recurrence is one of Countdown, Weekly, Monthly or OneTime. The interface is
// sealed: no other package can add a variant, and a Reminder stores exactly one.
type Recurrence interface {
	Kind() Kind
	// NextFireAfter returns the raw next fire instant measured from basis.
	NextFireAfter(basis time.Time) time.Time

	validate() error
	// cleared returns a copy with progress state (elapsed, skip) reset.
	cleared() Recurrence
}

// ---- Countdown ----

// Countdown fires Interval after the execution basis, minus any progress
// already banked in Elapsed across pauses.
type Countdown struct {
	Interval time.Duration
	Elapsed  time.Duration
}

func NewCountdown(interval time.Duration) (Countdown, error) {
	c := Countdown{Interval: interval}
	return c, c.validate()
}

func (c Countdown) Kind() Kind { return KindCountdown }

func (c Countdown) NextFireAfter(basis time.Time) time.Time { return basis.Add(c.Interval) }

// Remaining may be negative, meaning the countdown is already due.
func (c Countdown) Remaining() time.Duration { return c.Interval - c.Elapsed }

func (c Countdown) validate() error {
	if c.Interval <= 0 {
		return invalid("execution_interval", c.Interval, "must be positive")
	}
	if c.Elapsed < 0 {
		return invalid("interval_elapsed", c.Elapsed, "must not be negative")
	}
	return nil
}

func (c Countdown) cleared() Recurrence {
	c.Elapsed = 0
	return c
}

// ---- Weekly ----

// Weekly fires at Hour:Minute on each day in Days. A non-zero SkipDate means
// the next occurrence is being skipped; it records when the skip was requested.
type Weekly struct {
	Hour     int
	Minute   int
	Days     WeekdaySet
	SkipDate time.Time
}

func NewWeekly(hour, minute int, days ...time.Weekday) (Weekly, error) {
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return Weekly{}, invalid("weekday", int(d), "must be Sunday..Saturday")
		}
	}
	w := Weekly{Hour: hour, Minute: minute, Days: Weekdays(days...)}
	return w, w.validate()
}

func (w Weekly) Kind() Kind { return KindWeekly }

func (w Weekly) Skipping() bool { return !w.SkipDate.IsZero() }

// Degenerate reports an empty weekday set. Only decoded data can end up here;
// computations fall back to 7 and 14 days after the basis.
func (w Weekly) Degenerate() bool { return w.Days.Empty() }

// Occurrences returns the two earliest fire instants strictly after basis,
// ignoring skip state. The scan walks at most 15 calendar days.
func (w Weekly) Occurrences(basis time.Time) (first, second time.Time) {
	if w.Days.Empty() {
		return basis.AddDate(0, 0, 7), basis.AddDate(0, 0, 14)
	}
	loc := basis.Location()
	y, m, d := basis.Date()
	found := 0
	for i := 0; i <= 14 && found < 2; i++ {
		c := time.Date(y, m, d+i, w.Hour, w.Minute, 0, 0, loc)
		if !c.After(basis) || !w.Days.Has(c.Weekday()) {
			continue
		}
		if found == 0 {
			first = c
		} else {
			second = c
		}
		found++
	}
	return first, second
}

// NextFireAfter returns the first occurrence, or the second while skipping.
func (w Weekly) NextFireAfter(basis time.Time) time.Time {
	first, second := w.Occurrences(basis)
	if w.Skipping() {
		return second
	}
	return first
}

// PreviousFireBefore is the unskipped next occurrence shifted back one week.
func (w Weekly) PreviousFireBefore(basis time.Time) time.Time {
	first, _ := w.Occurrences(basis)
	return first.AddDate(0, 0, -7)
}

func (w Weekly) validate() error {
	if err := validateClock(w.Hour, w.Minute); err != nil {
		return err
	}
	if w.Days.Empty() {
		return invalid("weekdays", w.Days.String(), "at least one weekday required")
	}
	return nil
}

func (w Weekly) cleared() Recurrence {
	w.SkipDate = time.Time{}
	return w
}

// ---- Monthly ----

// Monthly fires at Hour:Minute on Day of every month. Months shorter than Day
// fire on their last day instead of rolling into the next month.
type Monthly struct {
	Day      int
	Hour     int
	Minute   int
	SkipDate time.Time
}

func NewMonthly(day, hour, minute int) (Monthly, error) {
	m := Monthly{Day: day, Hour: hour, Minute: minute}
	return m, m.validate()
}

func (m Monthly) Kind() Kind { return KindMonthly }

func (m Monthly) Skipping() bool { return !m.SkipDate.IsZero() }

// occurrenceIn returns the fire instant for the given calendar month,
// clamping Day to the month's length.
func (m Monthly) occurrenceIn(year int, month time.Month, loc *time.Location) time.Time {
	day := m.Day
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, m.Hour, m.Minute, 0, 0, loc)
}

// Occurrences returns the two earliest fire instants strictly after basis,
// ignoring skip state.
func (m Monthly) Occurrences(basis time.Time) (first, second time.Time) {
	loc := basis.Location()
	y, mo, _ := basis.Date()
	first = m.occurrenceIn(y, mo, loc)
	if !first.After(basis) {
		y, mo = addMonths(y, mo, 1)
		first = m.occurrenceIn(y, mo, loc)
	}
	y, mo = addMonths(y, mo, 1)
	second = m.occurrenceIn(y, mo, loc)
	return first, second
}

func (m Monthly) NextFireAfter(basis time.Time) time.Time {
	first, second := m.Occurrences(basis)
	if m.Skipping() {
		return second
	}
	return first
}

// PreviousFireBefore is the unskipped next occurrence one calendar month
// earlier, clamped again for that month.
func (m Monthly) PreviousFireBefore(basis time.Time) time.Time {
	first, _ := m.Occurrences(basis)
	y, mo := addMonths(first.Year(), first.Month(), -1)
	return m.occurrenceIn(y, mo, first.Location())
}

func (m Monthly) validate() error {
	if m.Day < 1 || m.Day > 31 {
		return invalid("day_of_month", m.Day, "must be 1..31")
	}
	return validateClock(m.Hour, m.Minute)
}

func (m Monthly) cleared() Recurrence {
	m.SkipDate = time.Time{}
	return m
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func addMonths(year int, month time.Month, n int) (int, time.Month) {
	t := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return t.Year(), t.Month()
}

// ---- OneTime ----

type OneTime struct {
	At time.Time
}

func NewOneTime(at time.Time) (OneTime, error) {
	o := OneTime{At: at}
	return o, o.validate()
}

func (o OneTime) Kind() Kind { return KindOneTime }

func (o OneTime) NextFireAfter(time.Time) time.Time { return o.At }

func (o OneTime) validate() error {
	if o.At.IsZero() {
		return invalid("fire_at", o.At, "required")
	}
	return nil
}

func (o OneTime) cleared() Recurrence { return o }

func validateClock(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return invalid("hour", hour, "must be 0..23")
	}
	if minute < 0 || minute > 59 {
		return invalid("minute", minute, "must be 0..59")
	}
	return nil
}

func sameRecurrence(a, b Recurrence) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case Countdown:
		y, ok := b.(Countdown)
		return ok && x == y
	case Weekly:
		y, ok := b.(Weekly)
		return ok && x.Hour == y.Hour && x.Minute == y.Minute && x.Days == y.Days && x.SkipDate.Equal(y.SkipDate)
	case Monthly:
		y, ok := b.(Monthly)
		return ok && x.Day == y.Day && x.Hour == y.Hour && x.Minute == y.Minute && x.SkipDate.Equal(y.SkipDate)
	case OneTime:
		y, ok := b.(OneTime)
		return ok && x.At.Equal(y.At)
	}
	return false
}
