package alarm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrStopped = errors.New("alarm engine stopped")

// ArmError reports a reminder that could not be armed. The next reconcile
// pass retries it.
type ArmError struct {
	Owner    uuid.UUID
	Reminder uuid.UUID
	Err      error
}

func (e *ArmError) Error() string {
	return fmt.Sprintf("arm reminder %s (owner %s): %v", e.Reminder, e.Owner, e.Err)
}

func (e *ArmError) Unwrap() error { return e.Err }

// Dispatcher receives due alarms. Delivery to the user is its business.
type Dispatcher interface {
	OnAlarmDue(ctx context.Context, owner, reminder uuid.UUID) error
}

type DispatcherFunc func(ctx context.Context, owner, reminder uuid.UUID) error

func (f DispatcherFunc) OnAlarmDue(ctx context.Context, owner, reminder uuid.UUID) error {
	return f(ctx, owner, reminder)
}
