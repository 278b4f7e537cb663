package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"petreminder/internal/reminder"
	"petreminder/pkg/logx"
)

var t0 = time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)

func openers(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"file": func(t *testing.T) Store {
			st, err := Open(context.Background(), Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
			require.NoError(t, err)
			return st
		},
		"sqlite": func(t *testing.T) Store {
			path := filepath.Join(t.TempDir(), "petreminder.db")
			st, err := Open(context.Background(), Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
			require.NoError(t, err)
			return st
		},
		"postgres": func(t *testing.T) Store {
			dsn := os.Getenv("PETREMINDER_TEST_PG_DSN")
			if dsn == "" {
				t.Skip("PETREMINDER_TEST_PG_DSN not set")
			}
			st, err := Open(context.Background(), Config{Driver: "postgres", DSN: dsn}, logx.Nop())
			require.NoError(t, err)
			return st
		},
	}
}

func sampleReminders(t *testing.T) []*reminder.Reminder {
	t.Helper()
	countdown, err := reminder.New(uuid.Nil, reminder.ActionFeed, "", reminder.Countdown{Interval: 30 * time.Minute}, t0)
	require.NoError(t, err)
	countdown.AccumulateElapsed(t0.Add(12 * time.Minute))

	w, err := reminder.NewWeekly(8, 0, time.Monday, time.Wednesday)
	require.NoError(t, err)
	weekly, err := reminder.New(uuid.Nil, reminder.ActionCustom, "Ear drops", w, t0)
	require.NoError(t, err)
	weekly.ChangeSkip(true, t0.Add(time.Minute))

	return []*reminder.Reminder{countdown, weekly}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()
			ctx := context.Background()
			owner := uuid.New()

			_, err := st.Load(ctx, owner)
			require.ErrorIs(t, err, ErrNotFound)

			want := &Snapshot{
				Owner:     owner,
				Reminders: sampleReminders(t),
				Paused:    true,
				PausedAt:  t0.Add(time.Hour),
				SavedAt:   t0.Add(2 * time.Hour),
			}
			require.NoError(t, st.Save(ctx, want))
			// Second save replaces the first.
			require.NoError(t, st.Save(ctx, want))

			got, err := st.Load(ctx, owner)
			require.NoError(t, err)
			require.Equal(t, owner, got.Owner)
			require.True(t, got.Paused)
			require.True(t, got.PausedAt.Equal(want.PausedAt))
			require.True(t, got.SavedAt.Equal(want.SavedAt))
			require.Len(t, got.Reminders, len(want.Reminders))
			for i := range want.Reminders {
				require.True(t, got.Reminders[i].Equivalent(want.Reminders[i]), "reminder %d differs", i)
			}
			require.True(t, got.Reminders[1].Skipping())

			owners, err := st.Owners(ctx)
			require.NoError(t, err)
			require.Contains(t, owners, owner)
		})
	}
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	for name, open := range openers(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			defer st.Close()
			ctx := context.Background()
			owner, other := uuid.New(), uuid.New()
			rem := uuid.New()

			for i := 0; i < 5; i++ {
				require.NoError(t, st.AppendHistory(ctx, HistoryEntry{
					At: t0.Add(time.Duration(i) * time.Minute), Owner: owner, Reminder: rem, Event: "alarm.fired",
				}))
				require.NoError(t, st.AppendHistory(ctx, HistoryEntry{At: t0, Owner: other, Event: "pause.changed", Detail: "paused"}))
			}

			got, err := st.History(ctx, owner, 3)
			require.NoError(t, err)
			require.Len(t, got, 3)
			require.True(t, got[0].At.Equal(t0.Add(2*time.Minute)))
			require.True(t, got[2].At.Equal(t0.Add(4*time.Minute)))
			require.Equal(t, rem, got[2].Reminder)

			got, err = st.History(ctx, other, 10)
			require.NoError(t, err)
			require.Len(t, got, 5)
			require.Equal(t, uuid.Nil, got[0].Reminder)
			require.Equal(t, "paused", got[0].Detail)
		})
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	require.Nil(t, st)

	_, err = Open(context.Background(), Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}

func TestSaveRejectsMissingOwner(t *testing.T) {
	t.Parallel()
	st, err := Open(context.Background(), Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	require.Error(t, st.Save(context.Background(), &Snapshot{}))
}
