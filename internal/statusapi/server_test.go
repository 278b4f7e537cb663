package statusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"

	"petreminder/internal/alarm"
	"petreminder/internal/dispatch"
	"petreminder/internal/pause"
	"petreminder/internal/reminder"
	"petreminder/pkg/logx"
)

var t0 = time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)

type fakeOwner struct {
	eng   *alarm.Engine
	pause *pause.Coordinator
}

type fakeBackend struct {
	clk     clock.FakeClock
	owners  map[uuid.UUID]*fakeOwner
	applied map[uuid.UUID][]*reminder.Reminder
	health  error
}

func newFakeBackend(t *testing.T, owner uuid.UUID, reminders ...*reminder.Reminder) *fakeBackend {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(t0)
	col, err := reminder.NewCollection(owner, reminders...)
	require.NoError(t, err)
	noop := alarm.DispatcherFunc(func(context.Context, uuid.UUID, uuid.UUID) error { return nil })
	eng := alarm.New(col, noop, alarm.Options{Clock: clk})
	t.Cleanup(eng.Stop)
	return &fakeBackend{
		clk:     clk,
		owners:  map[uuid.UUID]*fakeOwner{owner: {eng: eng, pause: pause.New(eng, logx.Nop(), nil)}},
		applied: map[uuid.UUID][]*reminder.Reminder{},
	}
}

func (b *fakeBackend) Owners() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.owners))
	for id := range b.owners {
		ids = append(ids, id)
	}
	return ids
}

func (b *fakeBackend) Engine(owner uuid.UUID) (*alarm.Engine, bool) {
	o, ok := b.owners[owner]
	if !ok {
		return nil, false
	}
	return o.eng, true
}

func (b *fakeBackend) PauseState(owner uuid.UUID) (pause.State, time.Time, bool) {
	o, ok := b.owners[owner]
	if !ok {
		return pause.Running, time.Time{}, false
	}
	return o.pause.State(), o.pause.PausedAt(), true
}

func (b *fakeBackend) SetPaused(ctx context.Context, owner uuid.UUID, paused bool) (bool, error) {
	o := b.owners[owner]
	if paused {
		return o.pause.Pause(ctx, b.clk.Now())
	}
	return o.pause.Unpause(ctx, b.clk.Now())
}

func (b *fakeBackend) ApplySnapshot(_ context.Context, owner uuid.UUID, rs []*reminder.Reminder) error {
	b.applied[owner] = rs
	return nil
}

func (b *fakeBackend) Recent(uuid.UUID, int) []dispatch.Alarm {
	return nil
}

func (b *fakeBackend) Now() time.Time {
	return b.clk.Now()
}

func (b *fakeBackend) DefaultSnooze() time.Duration {
	return 5 * time.Minute
}

func (b *fakeBackend) Health() error {
	return b.health
}

func countdown(t *testing.T, interval time.Duration, now time.Time) *reminder.Reminder {
	t.Helper()
	rec, err := reminder.NewCountdown(interval)
	require.NoError(t, err)
	r, err := reminder.New(uuid.Nil, reminder.ActionFeed, "", rec, now)
	require.NoError(t, err)
	return r
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTokenGuardsAPIButNotHealth(t *testing.T) {
	owner := uuid.New()
	b := newFakeBackend(t, owner)
	h := New(b, Config{Token: "s3cret"}, logx.Nop()).Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/v1/owners", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/v1/owners", "wrong", nil).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/owners", "s3cret", nil).Code)
}

func TestListRemindersReportsSchedule(t *testing.T) {
	owner := uuid.New()
	r := countdown(t, 30*time.Minute, t0.Add(-10*time.Minute))
	b := newFakeBackend(t, owner, r)
	h := New(b, Config{}, logx.Nop()).Handler()

	rec := do(t, h, http.MethodGet, "/v1/owners/"+owner.String()+"/reminders?upcoming=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Reminders []struct {
			ID               uuid.UUID   `json:"id"`
			Mode             string      `json:"mode"`
			NextExecution    time.Time   `json:"next_execution"`
			RemainingSeconds float64     `json:"remaining_seconds"`
			Upcoming         []time.Time `json:"upcoming"`
		} `json:"reminders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Reminders, 1)
	got := resp.Reminders[0]
	require.Equal(t, r.ID(), got.ID)
	require.True(t, got.NextExecution.Equal(t0.Add(20*time.Minute)), got.NextExecution)
	require.Equal(t, 1200.0, got.RemainingSeconds)
	require.Len(t, got.Upcoming, 2)
	require.True(t, got.Upcoming[1].Equal(t0.Add(50*time.Minute)))
}

func TestPausedCountdownReportsFrozenRemaining(t *testing.T) {
	owner := uuid.New()
	r := countdown(t, 1800*time.Second, t0)
	b := newFakeBackend(t, owner, r)
	h := New(b, Config{}, logx.Nop()).Handler()
	base := "/v1/owners/" + owner.String()

	b.clk.Add(1000 * time.Second)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/pause", "", nil).Code)
	b.clk.Add(time.Hour)

	rec := do(t, h, http.MethodGet, base+"/reminders?upcoming=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Reminders []struct {
			NextExecution    time.Time `json:"next_execution"`
			RemainingSeconds float64   `json:"remaining_seconds"`
		} `json:"reminders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Reminders, 1)
	got := resp.Reminders[0]
	require.Equal(t, 800.0, got.RemainingSeconds)
	require.True(t, got.NextExecution.Equal(t0.Add(1800*time.Second)), got.NextExecution)
}

func TestUnknownOwnerAndReminder(t *testing.T) {
	owner := uuid.New()
	b := newFakeBackend(t, owner)
	h := New(b, Config{}, logx.Nop()).Handler()

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/owners/nope/reminders", "", nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/owners/"+uuid.NewString()+"/reminders", "", nil).Code)

	path := "/v1/owners/" + owner.String() + "/reminders/" + uuid.NewString() + "/ack"
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, path, "", nil).Code)
}

func TestReminderActions(t *testing.T) {
	owner := uuid.New()
	r := countdown(t, time.Hour, t0)
	b := newFakeBackend(t, owner, r)
	h := New(b, Config{}, logx.Nop()).Handler()
	base := "/v1/owners/" + owner.String() + "/reminders/" + r.ID().String()
	eng, _ := b.Engine(owner)

	rec := do(t, h, http.MethodPost, base+"/snooze", "", map[string]string{"interval": "10m"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, _ := eng.Collection().Get(r.ID())
	require.True(t, got.SnoozeState().Enabled)
	require.Equal(t, 10*time.Minute, got.SnoozeState().Interval)

	rec = do(t, h, http.MethodPost, base+"/snooze", "", map[string]string{"interval": "soon"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/ack", "", nil).Code)
	got, _ = eng.Collection().Get(r.ID())
	require.False(t, got.SnoozeState().Enabled)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/disable", "", nil).Code)
	got, _ = eng.Collection().Get(r.ID())
	require.False(t, got.Enabled())
	require.Empty(t, eng.Pending())

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, base+"/enable", "", nil).Code)
	require.Len(t, eng.Pending(), 1)

	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, base, "", nil).Code)
	got, _ = eng.Collection().Get(r.ID())
	require.True(t, got.Deleted())
}

func TestPauseAndUnpause(t *testing.T) {
	owner := uuid.New()
	b := newFakeBackend(t, owner, countdown(t, time.Hour, t0))
	h := New(b, Config{}, logx.Nop()).Handler()
	base := "/v1/owners/" + owner.String()

	var resp struct {
		Changed bool   `json:"changed"`
		State   string `json:"state"`
	}
	rec := do(t, h, http.MethodPost, base+"/pause", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Changed)
	require.Equal(t, pause.Paused.String(), resp.State)

	rec = do(t, h, http.MethodPost, base+"/pause", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Changed)

	rec = do(t, h, http.MethodPost, base+"/unpause", "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Changed)
	require.Equal(t, pause.Running.String(), resp.State)
}

func TestPutSnapshotAcceptsNewOwner(t *testing.T) {
	b := newFakeBackend(t, uuid.New())
	h := New(b, Config{}, logx.Nop()).Handler()
	owner := uuid.New()
	r := countdown(t, time.Hour, t0)

	rec := do(t, h, http.MethodPut, "/v1/owners/"+owner.String()+"/snapshot", "", map[string]any{
		"reminders": []*reminder.Reminder{r},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, b.applied[owner], 1)
	require.True(t, b.applied[owner][0].Equivalent(r))

	rec = do(t, h, http.MethodPut, "/v1/owners/"+owner.String()+"/snapshot", "", map[string]any{
		"reminders": []any{nil},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReportsFailure(t *testing.T) {
	b := newFakeBackend(t, uuid.New())
	b.health = context.DeadlineExceeded
	h := New(b, Config{}, logx.Nop()).Handler()
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
}
