package reminder

import "time"

// DefaultSnoozeInterval applies when a reminder is created.
const DefaultSnoozeInterval = 5 * time.Minute

// Snooze overrides the base recurrence while Enabled.
type Snooze struct {
	Enabled  bool
	Interval time.Duration
	Elapsed  time.Duration
}

func (s Snooze) Remaining() time.Duration { return s.Interval - s.Elapsed }
