package statusapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"petreminder/internal/alarm"
	"petreminder/internal/pause"
	"petreminder/internal/reminder"
)

const (
	keyOwner    = "owner"
	keyEngine   = "engine"
	keyReminder = "reminder"

	defaultUpcoming = 3
	maxUpcoming     = 50
)

type ownerView struct {
	ID        uuid.UUID  `json:"id"`
	State     string     `json:"state"`
	PausedAt  *time.Time `json:"paused_at,omitempty"`
	Reminders int        `json:"reminders"`
	Armed     int        `json:"armed"`
}

type reminderView struct {
	ID               uuid.UUID          `json:"id"`
	Name             string             `json:"name"`
	Mode             string             `json:"mode"`
	Enabled          bool               `json:"enabled"`
	Skipping         bool               `json:"skipping"`
	NextExecution    *time.Time         `json:"next_execution,omitempty"`
	RemainingSeconds *float64           `json:"remaining_seconds,omitempty"`
	Upcoming         []time.Time        `json:"upcoming"`
	ArmedAt          *time.Time         `json:"armed_at,omitempty"`
	UnskipAt         *time.Time         `json:"unskip_at,omitempty"`
	State            *reminder.Reminder `json:"state"`
}

type snapshotRequest struct {
	Reminders []*reminder.Reminder `json:"reminders"`
}

type snoozeRequest struct {
	Interval string `json:"interval"`
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reminder.ErrValidation), errors.Is(err, reminder.ErrDuplicate):
		status = http.StatusBadRequest
	case errors.Is(err, pause.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, alarm.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) health(c *gin.Context) {
	if err := s.backend.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "owners": len(s.backend.Owners())})
}

func (s *Server) listOwners(c *gin.Context) {
	out := make([]ownerView, 0)
	for _, id := range s.backend.Owners() {
		eng, ok := s.backend.Engine(id)
		if !ok {
			continue
		}
		state, pausedAt, _ := s.backend.PauseState(id)
		v := ownerView{
			ID:        id,
			State:     state.String(),
			Reminders: eng.Collection().Len(),
			Armed:     len(eng.Pending()),
		}
		if !pausedAt.IsZero() {
			v.PausedAt = &pausedAt
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"owners": out})
}

func (s *Server) resolveOwner(c *gin.Context) {
	id, err := uuid.Parse(c.Param("owner"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid owner id"})
		return
	}
	c.Set(keyOwner, id)
	// PUT snapshot may create the owner.
	if eng, ok := s.backend.Engine(id); ok {
		c.Set(keyEngine, eng)
	} else if c.Request.Method != http.MethodPut {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown owner"})
		return
	}
	c.Next()
}

func (s *Server) resolveReminder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid reminder id"})
		return
	}
	c.Set(keyReminder, id)
	c.Next()
}

func ownerOf(c *gin.Context) uuid.UUID {
	return c.MustGet(keyOwner).(uuid.UUID)
}

func engineOf(c *gin.Context) *alarm.Engine {
	return c.MustGet(keyEngine).(*alarm.Engine)
}

func reminderOf(c *gin.Context) uuid.UUID {
	return c.MustGet(keyReminder).(uuid.UUID)
}

func (s *Server) listReminders(c *gin.Context) {
	n := defaultUpcoming
	if raw := c.Query("upcoming"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "upcoming must be a non-negative integer"})
			return
		}
		n = min(v, maxUpcoming)
	}

	eng := engineOf(c)
	armed := map[uuid.UUID][2]time.Time{}
	for _, p := range eng.Pending() {
		slot := armed[p.Reminder]
		if p.Unskip {
			slot[1] = p.At
		} else {
			slot[0] = p.At
		}
		armed[p.Reminder] = slot
	}

	now := s.backend.Now()
	// Banked countdowns stand still while the owner is paused.
	frozenAt := now
	if state, pausedAt, _ := s.backend.PauseState(ownerOf(c)); state == pause.Paused && !pausedAt.IsZero() {
		frozenAt = pausedAt
	}
	out := make([]reminderView, 0)
	for _, r := range eng.Collection().Snapshot() {
		if r.Deleted() {
			continue
		}
		v := reminderView{
			ID:       r.ID(),
			Name:     r.DisplayName(),
			Mode:     r.Mode().String(),
			Enabled:  r.Enabled(),
			Skipping: r.Skipping(),
			Upcoming: r.Upcoming(now, n),
			State:    r,
		}
		if next, ok := r.NextExecutionDate(now); ok {
			v.NextExecution = &next
		}
		at := now
		if r.CountsElapsed() {
			at = frozenAt
		}
		if rem, ok := r.IntervalRemaining(at); ok {
			secs := rem.Seconds()
			v.RemainingSeconds = &secs
		}
		if slot, ok := armed[r.ID()]; ok {
			if !slot[0].IsZero() {
				v.ArmedAt = &slot[0]
			}
			if !slot[1].IsZero() {
				v.UnskipAt = &slot[1]
			}
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"owner": ownerOf(c), "now": now, "reminders": out})
}

func (s *Server) recentAlarms(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || n <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alarms": s.backend.Recent(ownerOf(c), n)})
}

func (s *Server) putSnapshot(c *gin.Context) {
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i, r := range req.Reminders {
		if r == nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reminders[" + strconv.Itoa(i) + "] is null"})
			return
		}
	}
	if err := s.backend.ApplySnapshot(c.Request.Context(), ownerOf(c), req.Reminders); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": ownerOf(c), "reminders": len(req.Reminders)})
}

func (s *Server) setPaused(paused bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		changed, err := s.backend.SetPaused(c.Request.Context(), ownerOf(c), paused)
		if err != nil {
			fail(c, err)
			return
		}
		state, _, _ := s.backend.PauseState(ownerOf(c))
		c.JSON(http.StatusOK, gin.H{"changed": changed, "state": state.String()})
	}
}

func (s *Server) acknowledge(c *gin.Context) {
	if err := engineOf(c).Acknowledge(c.Request.Context(), reminderOf(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (s *Server) snooze(c *gin.Context) {
	interval := s.backend.DefaultSnooze()
	if c.Request.ContentLength != 0 {
		var req snoozeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Interval != "" {
			d, err := time.ParseDuration(req.Interval)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid interval: " + err.Error()})
				return
			}
			interval = d
		}
	}
	if err := engineOf(c).SnoozeAlarm(c.Request.Context(), reminderOf(c), interval); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snoozed": true, "interval": interval.String()})
}

func (s *Server) changeSkip(skipping bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		changed, err := engineOf(c).ChangeSkip(c.Request.Context(), reminderOf(c), skipping)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"changed": changed, "skipping": skipping})
	}
}

func (s *Server) setEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		changed, err := engineOf(c).SetEnabled(c.Request.Context(), reminderOf(c), enabled)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"changed": changed, "enabled": enabled})
	}
}

func (s *Server) deleteReminder(c *gin.Context) {
	if err := engineOf(c).Delete(c.Request.Context(), reminderOf(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
