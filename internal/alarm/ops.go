package alarm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"petreminder/internal/eventbus"
	"petreminder/internal/reminder"
	"petreminder/pkg/logx"
)

// Arm re-arms a single reminder from its current state.
func (e *Engine) Arm(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.Collection().With(id, func(r *reminder.Reminder) error {
		if err := e.arm(r); err != nil {
			return &ArmError{Owner: e.Owner(), Reminder: id, Err: err}
		}
		return nil
	})
}

// Add inserts a new reminder and arms it.
func (e *Engine) Add(ctx context.Context, r *reminder.Reminder) error {
	if err := e.Collection().Add(r); err != nil {
		return err
	}
	e.changed(r.ID(), "added")
	return e.Arm(ctx, r.ID())
}

// Update applies fn and re-arms in the same per-reminder section. fn reports
// whether it changed anything; unchanged reminders keep their timers. A
// failed fn never counts as a change.
func (e *Engine) Update(ctx context.Context, id uuid.UUID, fn func(r *reminder.Reminder, now time.Time) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	changed := false
	err := e.Collection().With(id, func(r *reminder.Reminder) error {
		var err error
		changed, err = fn(r, e.clk.Now())
		if err != nil {
			changed = false
			return err
		}
		if !changed {
			return nil
		}
		if err := e.arm(r); err != nil {
			return &ArmError{Owner: e.Owner(), Reminder: id, Err: err}
		}
		return nil
	})
	if changed {
		e.changed(id, "updated")
	}
	return changed, err
}

// Acknowledge handles a presented alarm: the reminder starts a new cycle from
// now. Acknowledged one-time reminders are deleted.
func (e *Engine) Acknowledge(ctx context.Context, id uuid.UUID) error {
	_, err := e.Update(ctx, id, func(r *reminder.Reminder, now time.Time) (bool, error) {
		r.PrepareForNextAlarm(now)
		if r.Recurrence().Kind() == reminder.KindOneTime {
			r.MarkDeleted()
		}
		return true, nil
	})
	return err
}

func (e *Engine) SnoozeAlarm(ctx context.Context, id uuid.UUID, interval time.Duration) error {
	_, err := e.Update(ctx, id, func(r *reminder.Reminder, now time.Time) (bool, error) {
		return true, r.Snooze(interval, now)
	})
	return err
}

func (e *Engine) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (bool, error) {
	return e.Update(ctx, id, func(r *reminder.Reminder, now time.Time) (bool, error) {
		return r.SetEnabled(enabled, now), nil
	})
}

func (e *Engine) ChangeSkip(ctx context.Context, id uuid.UUID, skipping bool) (bool, error) {
	return e.Update(ctx, id, func(r *reminder.Reminder, now time.Time) (bool, error) {
		return r.ChangeSkip(skipping, now), nil
	})
}

func (e *Engine) SetRecurrence(ctx context.Context, id uuid.UUID, rec reminder.Recurrence) (bool, error) {
	return e.Update(ctx, id, func(r *reminder.Reminder, now time.Time) (bool, error) {
		return r.SetRecurrence(rec, now)
	})
}

// Delete tombstones the reminder and cancels its timers. The tombstone stays
// in the collection so it can be synced.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := e.Update(ctx, id, func(r *reminder.Reminder, _ time.Time) (bool, error) {
		if r.Deleted() {
			return false, nil
		}
		r.MarkDeleted()
		return true, nil
	})
	return err
}

func (e *Engine) changed(id uuid.UUID, what string) {
	e.log.Debug("reminder.changed", logx.Reminder(id), logx.String("change", what))
	e.bus.Publish(eventbus.Event{Type: eventbus.ReminderChanged, Owner: e.Owner(), Reminder: id, Data: what})
}
