package reminder

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustReminder(t *testing.T, rec Recurrence, now time.Time) *Reminder {
	t.Helper()
	r, err := New(uuid.Nil, ActionFeed, "", rec, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func mustWeekly(t *testing.T, hour, minute int, days ...time.Weekday) Weekly {
	t.Helper()
	w, err := NewWeekly(hour, minute, days...)
	if err != nil {
		t.Fatalf("NewWeekly: %v", err)
	}
	return w
}

func TestCountdownNextExecution(t *testing.T) {
	t.Parallel()
	t0 := at(time.April, 1, 9, 0)
	r := mustReminder(t, Countdown{Interval: 1800 * time.Second}, t0)

	rem, ok := r.IntervalRemaining(t0)
	if !ok || rem != 1800*time.Second {
		t.Fatalf("IntervalRemaining = %v, %v", rem, ok)
	}
	next, ok := r.NextExecutionDate(t0)
	if !ok || !next.Equal(t0.Add(1800*time.Second)) {
		t.Fatalf("NextExecutionDate = %v, %v", next, ok)
	}
	if r.Mode() != ModeCountdown {
		t.Fatalf("Mode = %v", r.Mode())
	}
}

func TestCountdownRemainingRunsFromNow(t *testing.T) {
	t.Parallel()
	t0 := at(time.April, 1, 9, 0)
	r := mustReminder(t, Countdown{Interval: 1800 * time.Second}, t0)

	later := t0.Add(10 * time.Minute)
	if rem, _ := r.IntervalRemaining(later); rem != 1200*time.Second {
		t.Fatalf("remaining after 10m = %v", rem)
	}
	if rem, _ := r.IntervalRemaining(t0.Add(time.Hour)); rem != -1800*time.Second {
		t.Fatalf("overdue remaining = %v", rem)
	}

	next, _ := r.NextExecutionDate(later)
	if !r.AccumulateElapsed(later) {
		t.Fatalf("AccumulateElapsed reported nothing banked")
	}
	if !r.ExecutionBasis().Equal(later) {
		t.Fatalf("basis = %v, want %v", r.ExecutionBasis(), later)
	}
	if rem, _ := r.IntervalRemaining(later); rem != 1200*time.Second {
		t.Fatalf("remaining after banking = %v", rem)
	}
	if got, _ := r.NextExecutionDate(later); !got.Equal(next) {
		t.Fatalf("banking moved next from %v to %v", next, got)
	}
}

func TestWeeklySkipAndUnskip(t *testing.T) {
	t.Parallel()
	basis := at(time.April, 2, 10, 0) // Tuesday
	r := mustReminder(t, mustWeekly(t, 8, 0, time.Monday, time.Wednesday), basis)

	before, ok := r.NextExecutionDate(basis)
	if !ok || !before.Equal(at(time.April, 3, 8, 0)) {
		t.Fatalf("next = %v, %v", before, ok)
	}

	now := basis.Add(time.Hour)
	if !r.ChangeSkip(true, now) {
		t.Fatalf("skip reported no change")
	}
	skipped, _ := r.NextExecutionDate(now)
	if want := at(time.April, 8, 8, 0); !skipped.Equal(want) {
		t.Fatalf("skipping next = %v, want %v", skipped, want)
	}
	if inst, ok := r.UnskipInstant(); !ok || !inst.Equal(before) {
		t.Fatalf("UnskipInstant = %v, %v", inst, ok)
	}

	if !r.ChangeSkip(false, now.Add(time.Minute)) {
		t.Fatalf("unskip reported no change")
	}
	after, _ := r.NextExecutionDate(now.Add(time.Minute))
	if !after.Equal(before) {
		t.Fatalf("after unskip next = %v, want %v", after, before)
	}
	if !r.ExecutionBasis().Equal(now) {
		t.Fatalf("basis after unskip = %v, want skip instant %v", r.ExecutionBasis(), now)
	}
}

func TestChangeSkipIdempotent(t *testing.T) {
	t.Parallel()
	basis := at(time.April, 2, 10, 0)
	m, _ := NewMonthly(15, 7, 30)
	for _, rec := range []Recurrence{mustWeekly(t, 8, 0, time.Friday), m} {
		r := mustReminder(t, rec, basis)
		if !r.ChangeSkip(true, basis) {
			t.Fatalf("%v: first skip reported no change", rec.Kind())
		}
		snapshot := r.Clone()
		if r.ChangeSkip(true, basis.Add(time.Hour)) {
			t.Fatalf("%v: second skip reported a change", rec.Kind())
		}
		if !r.Equivalent(snapshot) {
			t.Fatalf("%v: second skip changed state", rec.Kind())
		}
		if r.ChangeSkip(false, basis); r.Skipping() {
			t.Fatalf("%v: still skipping", rec.Kind())
		}
		if r.ChangeSkip(false, basis) {
			t.Fatalf("%v: redundant unskip reported a change", rec.Kind())
		}
	}
}

func TestCountdownSkipRestarts(t *testing.T) {
	t.Parallel()
	t0 := at(time.April, 1, 9, 0)
	r := mustReminder(t, Countdown{Interval: time.Hour, Elapsed: 0}, t0)
	r.SetExecutionBasis(t0, false)
	later := t0.Add(40 * time.Minute)
	if !r.ChangeSkip(true, later) {
		t.Fatalf("countdown skip reported no change")
	}
	next, _ := r.NextExecutionDate(later)
	if !next.Equal(later.Add(time.Hour)) {
		t.Fatalf("next = %v", next)
	}
	if r.ChangeSkip(false, later) {
		t.Fatalf("countdown unskip should be a no-op")
	}
	if r.Skipping() {
		t.Fatalf("countdown never reports skipping")
	}
}

func TestOneTimeSkipIsNoop(t *testing.T) {
	t.Parallel()
	fire := at(time.April, 10, 12, 0)
	r := mustReminder(t, OneTime{At: fire}, at(time.April, 1, 0, 0))
	if r.ChangeSkip(true, at(time.April, 2, 0, 0)) {
		t.Fatalf("one-time skip reported a change")
	}
	next, ok := r.NextExecutionDate(at(time.April, 2, 0, 0))
	if !ok || !next.Equal(fire) {
		t.Fatalf("next = %v, %v", next, ok)
	}
	if rem, _ := r.IntervalRemaining(at(time.April, 10, 11, 0)); rem != time.Hour {
		t.Fatalf("remaining = %v", rem)
	}
}

func TestDisableEnableResetsProgress(t *testing.T) {
	t.Parallel()
	t0 := at(time.April, 1, 9, 0)
	r := mustReminder(t, Countdown{Interval: 1800 * time.Second}, t0)
	if !r.AccumulateElapsed(t0.Add(600 * time.Second)) {
		t.Fatalf("AccumulateElapsed reported nothing banked")
	}
	if rem, _ := r.IntervalRemaining(t0); rem != 1200*time.Second {
		t.Fatalf("remaining after 600s = %v", rem)
	}

	if !r.SetEnabled(false, t0) {
		t.Fatalf("disable reported no change")
	}
	if _, ok := r.NextExecutionDate(t0); ok {
		t.Fatalf("disabled reminder has a next execution")
	}
	if r.SetEnabled(false, t0) {
		t.Fatalf("redundant disable reported a change")
	}

	now := t0.Add(time.Hour)
	if !r.SetEnabled(true, now) {
		t.Fatalf("enable reported no change")
	}
	if !r.ExecutionBasis().Equal(now) {
		t.Fatalf("basis = %v, want %v", r.ExecutionBasis(), now)
	}
	if rem, _ := r.IntervalRemaining(now); rem != 1800*time.Second {
		t.Fatalf("remaining after re-enable = %v", rem)
	}
}

func TestSetRecurrence(t *testing.T) {
	t.Parallel()
	t0 := at(time.April, 1, 9, 0)
	r := mustReminder(t, Countdown{Interval: time.Hour}, t0)
	banked := t0.Add(10 * time.Minute)
	r.AccumulateElapsed(banked)

	changed, err := r.SetRecurrence(Countdown{Interval: time.Hour}, t0.Add(time.Hour))
	if err != nil || changed {
		t.Fatalf("identical recurrence: changed=%v err=%v", changed, err)
	}
	if !r.ExecutionBasis().Equal(banked) {
		t.Fatalf("no-op moved basis to %v", r.ExecutionBasis())
	}

	now := t0.Add(2 * time.Hour)
	changed, err = r.SetRecurrence(mustWeekly(t, 8, 0, time.Monday), now)
	if err != nil || !changed {
		t.Fatalf("new recurrence: changed=%v err=%v", changed, err)
	}
	if r.Mode() != ModeWeekly || !r.ExecutionBasis().Equal(now) {
		t.Fatalf("mode=%v basis=%v", r.Mode(), r.ExecutionBasis())
	}

	if _, err := r.SetRecurrence(Monthly{Day: 40}, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := r.SetRecurrence(nil, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for nil, got %v", err)
	}
}

func TestSnoozeOverridesRecurrence(t *testing.T) {
	t.Parallel()
	t0 := at(time.April, 2, 10, 0)
	r := mustReminder(t, mustWeekly(t, 8, 0, time.Monday), t0)
	r.MarkAlarmPresented()

	now := t0.Add(time.Minute)
	if err := r.Snooze(10*time.Minute, now); err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if r.Mode() != ModeSnooze {
		t.Fatalf("Mode = %v", r.Mode())
	}
	next, _ := r.NextExecutionDate(now)
	if !next.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("snooze next = %v", next)
	}
	if up := r.Upcoming(now, 3); len(up) != 1 {
		t.Fatalf("snoozed upcoming = %v", up)
	}

	r.PrepareForNextAlarm(next)
	if r.Mode() != ModeWeekly || r.SnoozeState().Enabled {
		t.Fatalf("snooze not cleared: %+v", r.SnoozeState())
	}
	if err := r.Snooze(0, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpcomingHonoursSkipOnce(t *testing.T) {
	t.Parallel()
	basis := at(time.April, 2, 10, 0) // Tuesday
	r := mustReminder(t, mustWeekly(t, 8, 0, time.Monday, time.Wednesday, time.Friday), basis)
	r.ChangeSkip(true, basis)

	got := r.Upcoming(basis, 4)
	want := []time.Time{
		at(time.April, 5, 8, 0),
		at(time.April, 8, 8, 0),
		at(time.April, 10, 8, 0),
		at(time.April, 12, 8, 0),
	}
	if len(got) != len(want) {
		t.Fatalf("Upcoming = %v", got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("Upcoming[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAutoUnskip(t *testing.T) {
	t.Parallel()
	basis := at(time.April, 2, 10, 0)
	m, _ := NewMonthly(3, 8, 0)
	r := mustReminder(t, m, basis)
	r.ChangeSkip(true, basis)

	fire := at(time.April, 3, 8, 0)
	if inst, ok := r.UnskipInstant(); !ok || !inst.Equal(fire) {
		t.Fatalf("UnskipInstant = %v, %v", inst, ok)
	}
	if !r.AutoUnskip(fire) {
		t.Fatalf("AutoUnskip reported no change")
	}
	next, _ := r.NextExecutionDate(fire)
	if want := at(time.May, 3, 8, 0); !next.Equal(want) {
		t.Fatalf("next after auto unskip = %v, want %v", next, want)
	}
	if r.AutoUnskip(fire) {
		t.Fatalf("second AutoUnskip reported a change")
	}
}

func TestNewValidatesAction(t *testing.T) {
	t.Parallel()
	now := at(time.April, 1, 0, 0)
	if _, err := New(uuid.Nil, Action("groom"), "", Countdown{Interval: time.Hour}, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown action: %v", err)
	}
	long := "a very long custom action name that exceeds"
	if _, err := New(uuid.Nil, ActionCustom, long, Countdown{Interval: time.Hour}, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("long custom name: %v", err)
	}
	r, err := New(uuid.Nil, ActionCustom, "Nail trim", Countdown{Interval: time.Hour}, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.ID() == uuid.Nil || r.DisplayName() != "Nail trim" {
		t.Fatalf("id=%v name=%q", r.ID(), r.DisplayName())
	}
}
