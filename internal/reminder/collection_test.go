package reminder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCollectionAddRemove(t *testing.T) {
	t.Parallel()
	now := at(time.April, 1, 9, 0)
	a := mustReminder(t, Countdown{Interval: time.Hour}, now)
	b := mustReminder(t, Countdown{Interval: 2 * time.Hour}, now)

	c, err := NewCollection(uuid.New(), a, b)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	if err := c.Add(a.Clone()); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}
	if !c.Remove(a.ID()) || c.Remove(a.ID()) {
		t.Fatalf("Remove should succeed exactly once")
	}
	err = c.With(a.ID(), func(*Reminder) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("With on removed id: %v", err)
	}
}

func TestCollectionSnapshotIsDetached(t *testing.T) {
	t.Parallel()
	now := at(time.April, 1, 9, 0)
	r := mustReminder(t, Countdown{Interval: time.Hour}, now)
	c, _ := NewCollection(uuid.New(), r)

	snap := c.Snapshot()
	snap[0].SetEnabled(false, now)

	got, ok := c.Get(r.ID())
	if !ok || !got.Enabled() {
		t.Fatalf("snapshot mutation leaked into collection")
	}
}

func TestCollectionWithSerializesPerReminder(t *testing.T) {
	t.Parallel()
	now := at(time.April, 1, 9, 0)
	r := mustReminder(t, Countdown{Interval: time.Hour}, now)
	c, _ := NewCollection(uuid.New(), r)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.With(r.ID(), func(r *Reminder) error {
				r.SetExecutionBasis(r.ExecutionBasis().Add(time.Second), false)
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := c.Get(r.ID())
	if want := now.Add(50 * time.Second); !got.ExecutionBasis().Equal(want) {
		t.Fatalf("basis = %v, want %v", got.ExecutionBasis(), want)
	}
}
