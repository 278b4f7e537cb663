package reminder

import (
	"time"

	"github.com/google/uuid"
)

// Mode is the effective scheduling mode of a reminder: its recurrence kind,
// or ModeSnooze while the snooze override is enabled.
type Mode int

const (
	ModeCountdown = Mode(KindCountdown)
	ModeWeekly    = Mode(KindWeekly)
	ModeMonthly   = Mode(KindMonthly)
	ModeOneTime   = Mode(KindOneTime)
	ModeSnooze    = Mode(KindOneTime + 1)
)

func (m Mode) String() string {
	if m == ModeSnooze {
		return "snooze"
	}
	return Kind(m).String()
}

// Reminder is a single recurring pet-care task. Callers must serialize access
// per reminder; Collection.With does that.
type Reminder struct {
	id               uuid.UUID
	action           Action
	customActionName string
	recurrence       Recurrence
	snooze           Snooze
	basis            time.Time
	enabled          bool
	alarmPresented   bool
	deleted          bool
}

// New creates an enabled reminder whose execution basis is now. A nil id is
// replaced with a random one.
func New(id uuid.UUID, action Action, customName string, rec Recurrence, now time.Time) (*Reminder, error) {
	if err := validateAction(action, customName); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, invalid("recurrence", nil, "required")
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	if action != ActionCustom {
		customName = ""
	}
	return &Reminder{
		id:               id,
		action:           action,
		customActionName: customName,
		recurrence:       rec.cleared(),
		snooze:           Snooze{Interval: DefaultSnoozeInterval},
		basis:            now,
		enabled:          true,
	}, nil
}

func (r *Reminder) ID() uuid.UUID                  { return r.id }
func (r *Reminder) Action() Action                 { return r.action }
func (r *Reminder) CustomActionName() string       { return r.customActionName }
func (r *Reminder) DisplayName() string            { return r.action.DisplayName(r.customActionName) }
func (r *Reminder) Recurrence() Recurrence         { return r.recurrence }
func (r *Reminder) SnoozeState() Snooze            { return r.snooze }
func (r *Reminder) ExecutionBasis() time.Time      { return r.basis }
func (r *Reminder) Enabled() bool                  { return r.enabled }
func (r *Reminder) AlarmPresentationHandled() bool { return r.alarmPresented }
func (r *Reminder) Deleted() bool                  { return r.deleted }

// Mode returns the effective scheduling mode.
func (r *Reminder) Mode() Mode {
	if r.snooze.Enabled {
		return ModeSnooze
	}
	return Mode(r.recurrence.Kind())
}

// Skipping reports whether a weekly or monthly reminder skips its next occurrence.
func (r *Reminder) Skipping() bool {
	switch rec := r.recurrence.(type) {
	case Weekly:
		return rec.Skipping()
	case Monthly:
		return rec.Skipping()
	}
	return false
}

// Clone returns an independent copy. Recurrence variants are values, so a
// shallow copy suffices.
func (r *Reminder) Clone() *Reminder {
	cp := *r
	return &cp
}

// SetAction changes the action and custom name. It does not affect scheduling.
func (r *Reminder) SetAction(action Action, customName string) error {
	if err := validateAction(action, customName); err != nil {
		return err
	}
	if action != ActionCustom {
		customName = ""
	}
	r.action, r.customActionName = action, customName
	return nil
}

// SetRecurrence replaces the recurrence. An identical recurrence is a no-op;
// otherwise the reminder is reset as for a new alarm cycle and progress state
// on the new recurrence starts cleared.
func (r *Reminder) SetRecurrence(rec Recurrence, now time.Time) (changed bool, err error) {
	if rec == nil {
		return false, invalid("recurrence", nil, "required")
	}
	if err := rec.validate(); err != nil {
		return false, err
	}
	rec = rec.cleared()
	if sameRecurrence(r.recurrence.cleared(), rec) {
		return false, nil
	}
	r.PrepareForNextAlarm(now)
	r.recurrence = rec
	return true, nil
}

// SetExecutionBasis moves the reference instant. With resetElapsed the
// countdown and snooze elapsed counters are zeroed as well.
func (r *Reminder) SetExecutionBasis(basis time.Time, resetElapsed bool) {
	r.basis = basis
	if !resetElapsed {
		return
	}
	r.snooze.Elapsed = 0
	if c, ok := r.recurrence.(Countdown); ok {
		c.Elapsed = 0
		r.recurrence = c
	}
}

// SetEnabled toggles the reminder. Enabling starts a fresh cycle from now.
// Setting the current value is a no-op.
func (r *Reminder) SetEnabled(enabled bool, now time.Time) bool {
	if r.enabled == enabled {
		return false
	}
	r.enabled = enabled
	if enabled {
		r.PrepareForNextAlarm(now)
	}
	return true
}

// PrepareForNextAlarm resets the reminder after an alarm was handled: the
// basis becomes now, snooze and skip are cleared and elapsed counters zeroed.
func (r *Reminder) PrepareForNextAlarm(now time.Time) {
	r.basis = now
	r.alarmPresented = false
	r.snooze.Enabled = false
	r.snooze.Elapsed = 0
	r.recurrence = r.recurrence.cleared()
}

// ChangeSkip sets or clears skipping of the next occurrence. Skipping a
// countdown restarts it from now. Unskipping rewinds the basis to the instant
// the skip was requested. One-time reminders and redundant requests report
// false.
func (r *Reminder) ChangeSkip(skipping bool, now time.Time) bool {
	switch rec := r.recurrence.(type) {
	case Countdown:
		if !skipping {
			return false
		}
		r.PrepareForNextAlarm(now)
		return true
	case Weekly:
		if rec.Skipping() == skipping {
			return false
		}
		if skipping {
			rec.SkipDate = now
		} else {
			r.basis = rec.SkipDate
			rec.SkipDate = time.Time{}
		}
		r.recurrence = rec
		return true
	case Monthly:
		if rec.Skipping() == skipping {
			return false
		}
		if skipping {
			rec.SkipDate = now
		} else {
			r.basis = rec.SkipDate
			rec.SkipDate = time.Time{}
		}
		r.recurrence = rec
		return true
	}
	return false
}

// AutoUnskip clears the skip once the skipped occurrence has passed. The
// basis moves to now so the following occurrence is picked.
func (r *Reminder) AutoUnskip(now time.Time) bool {
	switch rec := r.recurrence.(type) {
	case Weekly:
		if !rec.Skipping() {
			return false
		}
		rec.SkipDate = time.Time{}
		r.recurrence = rec
	case Monthly:
		if !rec.Skipping() {
			return false
		}
		rec.SkipDate = time.Time{}
		r.recurrence = rec
	default:
		return false
	}
	r.basis = now
	return true
}

// UnskipInstant returns the occurrence being skipped. The skip is lifted once
// it passes.
func (r *Reminder) UnskipInstant() (time.Time, bool) {
	switch rec := r.recurrence.(type) {
	case Weekly:
		if rec.Skipping() {
			first, _ := rec.Occurrences(r.basis)
			return first, true
		}
	case Monthly:
		if rec.Skipping() {
			first, _ := rec.Occurrences(r.basis)
			return first, true
		}
	}
	return time.Time{}, false
}

// IntervalRemaining is the time left at now until the next alarm. Negative
// means due. ok is false for weekly and monthly reminders whose previous
// occurrence already lies after the basis, meaning an alarm is overdue.
func (r *Reminder) IntervalRemaining(now time.Time) (time.Duration, bool) {
	if r.snooze.Enabled {
		return r.snooze.Remaining() - r.running(now), true
	}
	switch rec := r.recurrence.(type) {
	case Countdown:
		return rec.Remaining() - r.running(now), true
	case Weekly:
		if rec.PreviousFireBefore(r.basis).After(r.basis) {
			return 0, false
		}
		return rec.NextFireAfter(r.basis).Sub(now), true
	case Monthly:
		if rec.PreviousFireBefore(r.basis).After(r.basis) {
			return 0, false
		}
		return rec.NextFireAfter(r.basis).Sub(now), true
	case OneTime:
		return rec.At.Sub(now), true
	}
	return 0, false
}

// running is the unbanked time since the basis that counts towards a
// countdown or snooze.
func (r *Reminder) running(now time.Time) time.Duration {
	if !r.enabled || r.deleted || !now.After(r.basis) {
		return 0
	}
	return now.Sub(r.basis)
}

// NextExecutionDate returns when the next alarm fires. ok is false for
// disabled or deleted reminders. An overdue reminder returns now.
func (r *Reminder) NextExecutionDate(now time.Time) (time.Time, bool) {
	if !r.enabled || r.deleted {
		return time.Time{}, false
	}
	if _, ok := r.IntervalRemaining(now); !ok {
		return now, true
	}
	if r.snooze.Enabled {
		return r.basis.Add(r.snooze.Remaining()), true
	}
	if c, isCountdown := r.recurrence.(Countdown); isCountdown {
		return r.basis.Add(c.Remaining()), true
	}
	return r.recurrence.NextFireAfter(r.basis), true
}

// Upcoming lists up to n future fire instants starting with the next
// execution date. Snoozed and one-time reminders have a single entry.
func (r *Reminder) Upcoming(now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	next, ok := r.NextExecutionDate(now)
	if !ok {
		return nil
	}
	out := make([]time.Time, 0, n)
	out = append(out, next)
	if r.snooze.Enabled {
		return out
	}
	cursor := next
	for len(out) < n {
		switch rec := r.recurrence.(type) {
		case Countdown:
			cursor = cursor.Add(rec.Interval)
		case Weekly:
			cursor, _ = rec.Occurrences(cursor)
		case Monthly:
			cursor, _ = rec.Occurrences(cursor)
		default:
			return out
		}
		out = append(out, cursor)
	}
	return out
}

// Snooze starts the snooze override from now.
func (r *Reminder) Snooze(interval time.Duration, now time.Time) error {
	if interval <= 0 {
		return invalid("snooze_interval", interval, "must be positive")
	}
	r.snooze = Snooze{Enabled: true, Interval: interval}
	r.basis = now
	r.alarmPresented = false
	return nil
}

// MarkAlarmPresented records that the alarm for the current cycle fired.
func (r *Reminder) MarkAlarmPresented() bool {
	if r.alarmPresented {
		return false
	}
	r.alarmPresented = true
	return true
}

// CountsElapsed reports whether time passing between basis and now counts
// towards the next alarm, which is what pausing has to bank.
func (r *Reminder) CountsElapsed() bool {
	if !r.enabled || r.deleted || r.alarmPresented {
		return false
	}
	if r.snooze.Enabled {
		return true
	}
	_, ok := r.recurrence.(Countdown)
	return ok
}

// AccumulateElapsed banks the time between the basis and at into the active
// countdown or snooze counter and moves the basis to at. The next execution
// date and the remaining time at at are unchanged.
func (r *Reminder) AccumulateElapsed(at time.Time) bool {
	if !r.CountsElapsed() {
		return false
	}
	delta := r.running(at)
	if r.snooze.Enabled {
		r.snooze.Elapsed += delta
	} else {
		c := r.recurrence.(Countdown)
		c.Elapsed += delta
		r.recurrence = c
	}
	if at.After(r.basis) {
		r.basis = at
	}
	return true
}

// MarkDeleted tombstones the reminder so it is never armed again.
func (r *Reminder) MarkDeleted() { r.deleted = true }

// Localize converts the stored instants to loc. Calendar math follows the
// basis location.
func (r *Reminder) Localize(loc *time.Location) {
	if loc == nil {
		return
	}
	r.basis = r.basis.In(loc)
	switch rec := r.recurrence.(type) {
	case Weekly:
		if rec.Skipping() {
			rec.SkipDate = rec.SkipDate.In(loc)
		}
		r.recurrence = rec
	case Monthly:
		if rec.Skipping() {
			rec.SkipDate = rec.SkipDate.In(loc)
		}
		r.recurrence = rec
	case OneTime:
		rec.At = rec.At.In(loc)
		r.recurrence = rec
	}
}

// Equivalent compares identity, action, scheduling state and the active
// recurrence. The alarm-presentation flag is ignored.
func (r *Reminder) Equivalent(other *Reminder) bool {
	if other == nil {
		return false
	}
	return r.id == other.id &&
		r.action == other.action &&
		r.customActionName == other.customActionName &&
		r.basis.Equal(other.basis) &&
		r.enabled == other.enabled &&
		r.deleted == other.deleted &&
		r.snooze == other.snooze &&
		sameRecurrence(r.recurrence, other.recurrence)
}
