package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"petreminder/internal/alarm"
	"petreminder/internal/config"
	"petreminder/internal/dispatch"
	"petreminder/internal/pause"
	"petreminder/internal/reminder"
	"petreminder/internal/storage"
	"petreminder/pkg/logx"
)

// Owner bundles the scheduling state of one reminder collection.
type Owner struct {
	ID     uuid.UUID
	Engine *alarm.Engine
	Pause  *pause.Coordinator
}

func (a *App) newOwner(col *reminder.Collection) *Owner {
	rt := a.runtime()
	eng := alarm.New(col, a.disp, alarm.Options{
		Clock:           a.clk,
		Logger:          a.log,
		Bus:             a.bus,
		QueueSize:       rt.QueueSize,
		DispatchTimeout: rt.DispatchTimeout,
	})
	return &Owner{ID: col.Owner(), Engine: eng, Pause: pause.New(eng, a.log, a.bus)}
}

// loadOwners builds an Owner for every stored owner plus the ones named in
// the config.
func (a *App) loadOwners(ctx context.Context, rt *config.Runtime) error {
	ids := map[uuid.UUID]struct{}{}
	if a.store != nil {
		stored, err := a.store.Owners(ctx)
		if err != nil {
			return fmt.Errorf("list owners: %w", err)
		}
		for _, id := range stored {
			ids[id] = struct{}{}
		}
	}
	for _, id := range rt.Owners {
		ids[id] = struct{}{}
	}

	for id := range ids {
		snap, err := a.loadSnapshot(ctx, id)
		if err != nil {
			return fmt.Errorf("load owner %s: %w", id, err)
		}
		col, err := reminder.NewCollection(id, snap.Reminders...)
		if err != nil {
			return fmt.Errorf("load owner %s: %w", id, err)
		}
		col.Localize(rt.Location)
		o := a.newOwner(col)
		o.Pause.Restore(snap.Paused, snap.PausedAt)
		a.owners[id] = o
		a.log.Info("owner.loaded", logx.Owner(id), logx.Int("reminders", col.Len()), logx.Bool("paused", snap.Paused))
	}
	return nil
}

func (a *App) loadSnapshot(ctx context.Context, id uuid.UUID) (*storage.Snapshot, error) {
	if a.store == nil {
		return &storage.Snapshot{Owner: id}, nil
	}
	snap, err := a.store.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return &storage.Snapshot{Owner: id}, nil
	}
	return snap, err
}

// startOwner runs the engine under the supervisor and arms it.
func (a *App) startOwner(ctx context.Context, o *Owner) {
	a.sup.Go("alarm."+o.ID.String(), func(c context.Context) error {
		err := o.Engine.Run(c)
		if errors.Is(err, alarm.ErrStopped) {
			return nil
		}
		return err
	})
	if err := o.Engine.ArmAll(ctx); err != nil {
		a.log.Warn("alarm.arm_failed", logx.Owner(o.ID), logx.Err(err))
	}
}

func (a *App) owner(id uuid.UUID) (*Owner, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o, ok := a.owners[id]
	return o, ok
}

func (a *App) ownerList() []*Owner {
	a.mu.RLock()
	out := make([]*Owner, 0, len(a.owners))
	for _, o := range a.owners {
		out = append(out, o)
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (a *App) lookup(owner, id uuid.UUID) (*reminder.Reminder, bool) {
	o, ok := a.owner(owner)
	if !ok {
		return nil, false
	}
	return o.Engine.Collection().Get(id)
}

// Owners returns every known owner id in order.
func (a *App) Owners() []uuid.UUID {
	list := a.ownerList()
	ids := make([]uuid.UUID, len(list))
	for i, o := range list {
		ids[i] = o.ID
	}
	return ids
}

func (a *App) Engine(owner uuid.UUID) (*alarm.Engine, bool) {
	o, ok := a.owner(owner)
	if !ok {
		return nil, false
	}
	return o.Engine, true
}

func (a *App) PauseState(owner uuid.UUID) (pause.State, time.Time, bool) {
	o, ok := a.owner(owner)
	if !ok {
		return pause.Running, time.Time{}, false
	}
	return o.Pause.State(), o.Pause.PausedAt(), true
}

// SetPaused pauses or resumes every countdown of an owner at the current
// instant.
func (a *App) SetPaused(ctx context.Context, owner uuid.UUID, paused bool) (bool, error) {
	o, ok := a.owner(owner)
	if !ok {
		return false, reminder.ErrNotFound
	}
	if paused {
		return o.Pause.Pause(ctx, a.clk.Now())
	}
	return o.Pause.Unpause(ctx, a.clk.Now())
}

// ApplySnapshot replaces an owner's collection with a remotely synced one and
// re-arms every timer. Unknown owners are created.
func (a *App) ApplySnapshot(ctx context.Context, owner uuid.UUID, reminders []*reminder.Reminder) error {
	if owner == uuid.Nil {
		return fmt.Errorf("apply snapshot: %w", &reminder.ValidationError{Field: "owner", Value: owner, Reason: "must be set"})
	}
	col, err := reminder.NewCollection(owner, reminders...)
	if err != nil {
		return fmt.Errorf("apply snapshot: %w", err)
	}
	col.Localize(a.runtime().Location)

	a.mu.Lock()
	o, ok := a.owners[owner]
	if !ok {
		o = a.newOwner(col)
		a.owners[owner] = o
	}
	a.mu.Unlock()

	if !ok {
		if a.sup != nil {
			a.startOwner(a.sup.Context(), o)
		}
		a.log.Info("owner.created", logx.Owner(owner), logx.Int("reminders", col.Len()))
	} else if err := o.Engine.RearmAll(ctx, col); err != nil {
		a.markDirty(owner)
		return err
	}
	a.markDirty(owner)
	return nil
}

func (a *App) Recent(owner uuid.UUID, n int) []dispatch.Alarm { return a.disp.Recent(owner, n) }

func (a *App) Now() time.Time { return a.clk.Now() }

func (a *App) DefaultSnooze() time.Duration { return a.runtime().DefaultSnooze }

// Health reports the first supervised failure, if any.
func (a *App) Health() error { return a.Err() }
