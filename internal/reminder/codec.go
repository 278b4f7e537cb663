package reminder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type wireReminder struct {
	ID                       uuid.UUID      `json:"id"`
	Action                   Action         `json:"action"`
	CustomActionName         string         `json:"custom_action_name,omitempty"`
	Kind                     string         `json:"kind"`
	Countdown                *wireCountdown `json:"countdown,omitempty"`
	Weekly                   *wireWeekly    `json:"weekly,omitempty"`
	Monthly                  *wireMonthly   `json:"monthly,omitempty"`
	OneTime                  *wireOneTime   `json:"one_time,omitempty"`
	Snooze                   wireSnooze     `json:"snooze"`
	ExecutionBasis           time.Time      `json:"execution_basis"`
	Enabled                  bool           `json:"enabled"`
	AlarmPresentationHandled bool           `json:"alarm_presentation_handled"`
	Deleted                  bool           `json:"deleted,omitempty"`
}

// Durations travel as integer nanoseconds.
type wireCountdown struct {
	ExecutionInterval int64 `json:"execution_interval_ns"`
	IntervalElapsed   int64 `json:"interval_elapsed_ns"`
}

// Weekdays are encoded 1..7 with Sunday = 1.
type wireWeekly struct {
	Hour     int        `json:"hour"`
	Minute   int        `json:"minute"`
	Weekdays []int      `json:"weekdays"`
	SkipDate *time.Time `json:"skip_date,omitempty"`
}

type wireMonthly struct {
	Day      int        `json:"day"`
	Hour     int        `json:"hour"`
	Minute   int        `json:"minute"`
	SkipDate *time.Time `json:"skip_date,omitempty"`
}

type wireOneTime struct {
	At time.Time `json:"at"`
}

type wireSnooze struct {
	Enabled  bool  `json:"enabled"`
	Interval int64 `json:"interval_ns"`
	Elapsed  int64 `json:"elapsed_ns"`
}

func skipPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func skipVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (r *Reminder) MarshalJSON() ([]byte, error) {
	w := wireReminder{
		ID:                       r.id,
		Action:                   r.action,
		CustomActionName:         r.customActionName,
		Snooze:                   wireSnooze{Enabled: r.snooze.Enabled, Interval: int64(r.snooze.Interval), Elapsed: int64(r.snooze.Elapsed)},
		ExecutionBasis:           r.basis,
		Enabled:                  r.enabled,
		AlarmPresentationHandled: r.alarmPresented,
		Deleted:                  r.deleted,
	}
	switch rec := r.recurrence.(type) {
	case Countdown:
		w.Countdown = &wireCountdown{ExecutionInterval: int64(rec.Interval), IntervalElapsed: int64(rec.Elapsed)}
	case Weekly:
		days := rec.Days.Days()
		ww := &wireWeekly{Hour: rec.Hour, Minute: rec.Minute, Weekdays: make([]int, len(days)), SkipDate: skipPtr(rec.SkipDate)}
		for i, d := range days {
			ww.Weekdays[i] = int(d) + 1
		}
		w.Weekly = ww
	case Monthly:
		w.Monthly = &wireMonthly{Day: rec.Day, Hour: rec.Hour, Minute: rec.Minute, SkipDate: skipPtr(rec.SkipDate)}
	case OneTime:
		w.OneTime = &wireOneTime{At: rec.At}
	default:
		return nil, fmt.Errorf("reminder %s: no recurrence", r.id)
	}
	w.Kind = r.recurrence.Kind().String()
	return json.Marshal(w)
}

// UnmarshalJSON restores every field. Stored weekly reminders with an empty
// weekday set are accepted; they schedule with the degenerate fallback.
func (r *Reminder) UnmarshalJSON(data []byte) error {
	var w wireReminder
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID == uuid.Nil {
		return invalid("id", w.ID, "required")
	}
	if err := validateAction(w.Action, w.CustomActionName); err != nil {
		return err
	}
	kind, err := ParseKind(w.Kind)
	if err != nil {
		return err
	}
	var rec Recurrence
	switch kind {
	case KindCountdown:
		if w.Countdown == nil {
			return invalid("countdown", nil, "missing for kind countdown")
		}
		c := Countdown{Interval: time.Duration(w.Countdown.ExecutionInterval), Elapsed: time.Duration(w.Countdown.IntervalElapsed)}
		if err := c.validate(); err != nil {
			return err
		}
		rec = c
	case KindWeekly:
		if w.Weekly == nil {
			return invalid("weekly", nil, "missing for kind weekly")
		}
		if err := validateClock(w.Weekly.Hour, w.Weekly.Minute); err != nil {
			return err
		}
		var set WeekdaySet
		for _, d := range w.Weekly.Weekdays {
			if d < 1 || d > 7 {
				return invalid("weekday", d, "must be 1..7")
			}
			set |= Weekdays(time.Weekday(d - 1))
		}
		rec = Weekly{Hour: w.Weekly.Hour, Minute: w.Weekly.Minute, Days: set, SkipDate: skipVal(w.Weekly.SkipDate)}
	case KindMonthly:
		if w.Monthly == nil {
			return invalid("monthly", nil, "missing for kind monthly")
		}
		m := Monthly{Day: w.Monthly.Day, Hour: w.Monthly.Hour, Minute: w.Monthly.Minute, SkipDate: skipVal(w.Monthly.SkipDate)}
		if err := m.validate(); err != nil {
			return err
		}
		rec = m
	case KindOneTime:
		if w.OneTime == nil {
			return invalid("one_time", nil, "missing for kind one_time")
		}
		o := OneTime{At: w.OneTime.At}
		if err := o.validate(); err != nil {
			return err
		}
		rec = o
	}
	if w.Snooze.Interval < 0 || w.Snooze.Elapsed < 0 {
		return invalid("snooze", w.Snooze, "negative duration")
	}
	if w.ExecutionBasis.IsZero() {
		return invalid("execution_basis", w.ExecutionBasis, "required")
	}

	*r = Reminder{
		id:               w.ID,
		action:           w.Action,
		customActionName: w.CustomActionName,
		recurrence:       rec,
		snooze: Snooze{
			Enabled:  w.Snooze.Enabled,
			Interval: time.Duration(w.Snooze.Interval),
			Elapsed:  time.Duration(w.Snooze.Elapsed),
		},
		basis:          w.ExecutionBasis,
		enabled:        w.Enabled,
		alarmPresented: w.AlarmPresentationHandled,
		deleted:        w.Deleted,
	}
	return nil
}
