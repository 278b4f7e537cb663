package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"

	"petreminder/internal/pause"
	"petreminder/internal/storage"
	"petreminder/pkg/logx"
)

func (a *App) markDirty(owner uuid.UUID) {
	if a.store == nil || owner == uuid.Nil {
		return
	}
	a.dirtyMu.Lock()
	a.dirty[owner] = struct{}{}
	a.dirtyMu.Unlock()
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

func (a *App) takeDirty() []uuid.UUID {
	a.dirtyMu.Lock()
	defer a.dirtyMu.Unlock()
	out := make([]uuid.UUID, 0, len(a.dirty))
	for id := range a.dirty {
		out = append(out, id)
	}
	clear(a.dirty)
	return out
}

// saveLoop writes dirty owners once changes settle for SaveDebounce.
func (a *App) saveLoop(ctx context.Context) {
	var (
		t    *clock.Timer
		fire <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return
		case <-a.kick:
			if t == nil {
				t = a.clk.NewTimer(a.runtime().SaveDebounce)
				fire = t.C
			}
		case <-fire:
			t, fire = nil, nil
			a.flush(ctx)
		}
	}
}

func (a *App) flush(ctx context.Context) {
	for _, id := range a.takeDirty() {
		o, ok := a.owner(id)
		if !ok {
			continue
		}
		if err := a.saveOwner(ctx, o); err != nil {
			a.log.Warn("snapshot.save_failed", logx.Owner(id), logx.Err(err))
			a.markDirty(id)
		}
	}
}

func (a *App) saveOwner(ctx context.Context, o *Owner) error {
	if a.store == nil {
		return nil
	}
	snap := &storage.Snapshot{
		Owner:     o.ID,
		Reminders: o.Engine.Collection().Snapshot(),
		Paused:    o.Pause.State() == pause.Paused,
		PausedAt:  o.Pause.PausedAt(),
		SavedAt:   a.clk.Now(),
	}
	return a.store.Save(ctx, snap)
}

// saveAll writes every owner regardless of the dirty set.
func (a *App) saveAll(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	a.takeDirty()
	var errs []error
	for _, o := range a.ownerList() {
		if err := a.saveOwner(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
