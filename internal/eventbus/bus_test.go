package eventbus

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
)

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake()
	b := New(clk)

	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	fired, unsubFired := b.Subscribe(4, AlarmFired)
	defer unsubFired()

	owner := uuid.New()
	b.Publish(Event{Type: AlarmArmed, Owner: owner})
	b.Publish(Event{Type: AlarmFired, Owner: owner})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events", got)
	}
	if got := len(fired); got != 1 {
		t.Fatalf("filtered subscriber got %d events", got)
	}
	e := <-fired
	if e.Type != AlarmFired || !e.Time.Equal(clk.Now()) {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New(clock.NewFake())
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(Event{Type: ReminderChanged})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber")
	}
	if got := Dropped(b); got != 4 {
		t.Fatalf("Dropped = %d, want 4", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New(nil)
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	b.Publish(Event{Type: AlarmArmed})
}
