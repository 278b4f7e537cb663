package reminder

import (
	"errors"
	"testing"
	"time"
)

// 2024-04-01 is a Monday.
func at(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, time.UTC)
}

func TestWeeklyNextFireAfter(t *testing.T) {
	t.Parallel()
	w, err := NewWeekly(8, 0, time.Monday, time.Wednesday)
	if err != nil {
		t.Fatalf("NewWeekly: %v", err)
	}

	tests := []struct {
		name  string
		basis time.Time
		want  time.Time
	}{
		{"tuesday morning", at(time.April, 2, 10, 0), at(time.April, 3, 8, 0)},
		{"wednesday before fire", at(time.April, 3, 7, 59), at(time.April, 3, 8, 0)},
		{"exactly at fire", at(time.April, 3, 8, 0), at(time.April, 8, 8, 0)},
		{"saturday", at(time.April, 6, 12, 0), at(time.April, 8, 8, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := w.NextFireAfter(tc.basis)
			if !got.Equal(tc.want) {
				t.Fatalf("NextFireAfter(%v) = %v, want %v", tc.basis, got, tc.want)
			}
		})
	}
}

func TestWeeklyOccurrenceProperties(t *testing.T) {
	t.Parallel()
	sets := [][]time.Weekday{
		{time.Sunday},
		{time.Friday},
		{time.Monday, time.Wednesday, time.Friday},
		{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
	}
	for _, days := range sets {
		w, err := NewWeekly(21, 30, days...)
		if err != nil {
			t.Fatalf("NewWeekly(%v): %v", days, err)
		}
		for h := 0; h < 24*14; h += 5 {
			basis := at(time.April, 1, 0, 0).Add(time.Duration(h) * time.Hour)
			next := w.NextFireAfter(basis)
			if !next.After(basis) {
				t.Fatalf("%v: next %v not after basis %v", w.Days, next, basis)
			}
			if !w.Days.Has(next.Weekday()) || next.Hour() != 21 || next.Minute() != 30 {
				t.Fatalf("%v: next %v does not match schedule", w.Days, next)
			}
			if next.Sub(basis) > 7*24*time.Hour {
				t.Fatalf("%v: next %v more than a week after %v", w.Days, next, basis)
			}
			if prev := w.PreviousFireBefore(basis); prev.After(basis) {
				t.Fatalf("%v: previous %v after basis %v", w.Days, prev, basis)
			}

			skipping := w
			skipping.SkipDate = basis
			if s := skipping.NextFireAfter(basis); !s.After(next) {
				t.Fatalf("%v: skipping next %v not after %v", w.Days, s, next)
			}
		}
	}
}

func TestWeeklyDegenerateFallback(t *testing.T) {
	t.Parallel()
	w := Weekly{Hour: 8}
	basis := at(time.April, 2, 10, 0)
	if !w.Degenerate() {
		t.Fatalf("expected degenerate weekly")
	}
	first, second := w.Occurrences(basis)
	if !first.Equal(basis.AddDate(0, 0, 7)) || !second.Equal(basis.AddDate(0, 0, 14)) {
		t.Fatalf("fallback = %v, %v", first, second)
	}
}

func TestMonthlyDayClamp(t *testing.T) {
	t.Parallel()
	m, err := NewMonthly(31, 9, 0)
	if err != nil {
		t.Fatalf("NewMonthly: %v", err)
	}
	tests := []struct {
		name  string
		basis time.Time
		want  time.Time
	}{
		{"april clamps to 30", at(time.April, 5, 12, 0), at(time.April, 30, 9, 0)},
		{"after april fire", at(time.April, 30, 9, 0), at(time.May, 31, 9, 0)},
		{"leap february", at(time.February, 1, 0, 0), at(time.February, 29, 9, 0)},
		{"january", at(time.January, 31, 8, 59), at(time.January, 31, 9, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := m.NextFireAfter(tc.basis)
			if !got.Equal(tc.want) {
				t.Fatalf("NextFireAfter(%v) = %v, want %v", tc.basis, got, tc.want)
			}
		})
	}
}

func TestMonthlyOccurrenceProperties(t *testing.T) {
	t.Parallel()
	for day := 1; day <= 31; day++ {
		m, err := NewMonthly(day, 6, 15)
		if err != nil {
			t.Fatalf("NewMonthly(%d): %v", day, err)
		}
		for d := 0; d < 400; d += 3 {
			basis := time.Date(2023, time.January, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, d)
			next := m.NextFireAfter(basis)
			if !next.After(basis) {
				t.Fatalf("day %d: next %v not after %v", day, next, basis)
			}
			want := day
			if last := DaysIn(next.Year(), next.Month()); want > last {
				want = last
			}
			if next.Day() != want {
				t.Fatalf("day %d: next %v lands on %d, want %d", day, next, next.Day(), want)
			}
			if prev := m.PreviousFireBefore(basis); prev.After(basis) {
				t.Fatalf("day %d: previous %v after %v", day, prev, basis)
			}
		}
	}
}

func TestMonthlyPreviousReclamps(t *testing.T) {
	t.Parallel()
	m, _ := NewMonthly(31, 9, 0)
	// Unskipped next from Mar 31 10:00 is Apr 30; one month back is Mar 31.
	prev := m.PreviousFireBefore(at(time.March, 31, 10, 0))
	if want := at(time.March, 31, 9, 0); !prev.Equal(want) {
		t.Fatalf("PreviousFireBefore = %v, want %v", prev, want)
	}
}

func TestConstructorsRejectOutOfRange(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		fn   func() error
	}{
		{"zero countdown", func() error { _, err := NewCountdown(0); return err }},
		{"hour 24", func() error { _, err := NewWeekly(24, 0, time.Monday); return err }},
		{"minute 60", func() error { _, err := NewWeekly(1, 60, time.Monday); return err }},
		{"no weekdays", func() error { _, err := NewWeekly(1, 0); return err }},
		{"bad weekday", func() error { _, err := NewWeekly(1, 0, time.Weekday(9)); return err }},
		{"day 0", func() error { _, err := NewMonthly(0, 0, 0); return err }},
		{"day 32", func() error { _, err := NewMonthly(32, 0, 0); return err }},
		{"zero one-time", func() error { _, err := NewOneTime(time.Time{}); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn()
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field == "" {
				t.Fatalf("expected *ValidationError with field, got %#v", err)
			}
		})
	}
}
