package reminder

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Collection holds one owner's reminders. Operations on the same reminder are
// serialized by a per-reminder mutex; the map itself has its own lock so
// unrelated reminders never contend.
type Collection struct {
	owner uuid.UUID

	mu    sync.RWMutex
	items map[uuid.UUID]*entry
}

type entry struct {
	mu      sync.Mutex
	r       *Reminder
	removed bool
}

func NewCollection(owner uuid.UUID, reminders ...*Reminder) (*Collection, error) {
	c := &Collection{owner: owner, items: make(map[uuid.UUID]*entry, len(reminders))}
	for _, r := range reminders {
		if err := c.Add(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collection) Owner() uuid.UUID { return c.owner }

func (c *Collection) Add(r *Reminder) error {
	if r == nil {
		return invalid("reminder", nil, "required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[r.id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, r.id)
	}
	c.items[r.id] = &entry{r: r}
	return nil
}

// Remove drops a reminder, waiting for any in-flight With on it to finish.
func (c *Collection) Remove(id uuid.UUID) bool {
	c.mu.Lock()
	e, ok := c.items[id]
	if ok {
		delete(c.items, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return true
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// IDs returns the reminder ids in a stable order.
func (c *Collection) IDs() []uuid.UUID {
	c.mu.RLock()
	ids := make([]uuid.UUID, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// With runs fn while holding the reminder's lock. fn must not call back into
// the collection for the same id.
func (c *Collection) With(id uuid.UUID, fn func(*Reminder) error) error {
	c.mu.RLock()
	e, ok := c.items[id]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fn(e.r)
}

// Each calls With for every reminder and joins the errors. Reminders removed
// during the walk are skipped.
func (c *Collection) Each(fn func(*Reminder) error) error {
	var errs []error
	for _, id := range c.IDs() {
		err := c.With(id, fn)
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns a copy of the reminder.
func (c *Collection) Get(id uuid.UUID) (*Reminder, bool) {
	var out *Reminder
	err := c.With(id, func(r *Reminder) error {
		out = r.Clone()
		return nil
	})
	return out, err == nil
}

// Snapshot returns copies of every reminder in id order.
func (c *Collection) Snapshot() []*Reminder {
	out := make([]*Reminder, 0, c.Len())
	_ = c.Each(func(r *Reminder) error {
		out = append(out, r.Clone())
		return nil
	})
	return out
}

func (c *Collection) Localize(loc *time.Location) {
	_ = c.Each(func(r *Reminder) error {
		r.Localize(loc)
		return nil
	})
}
