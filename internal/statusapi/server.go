// Package statusapi serves a small HTTP surface for inspecting schedules and
// driving reminder actions (acknowledge, snooze, skip, pause) from outside
// the daemon.
package statusapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"petreminder/internal/alarm"
	"petreminder/internal/dispatch"
	"petreminder/internal/pause"
	"petreminder/internal/reminder"
	"petreminder/pkg/logx"
)

// Backend is what the API needs from the running daemon.
type Backend interface {
	Owners() []uuid.UUID
	Engine(owner uuid.UUID) (*alarm.Engine, bool)
	PauseState(owner uuid.UUID) (pause.State, time.Time, bool)
	SetPaused(ctx context.Context, owner uuid.UUID, paused bool) (bool, error)
	ApplySnapshot(ctx context.Context, owner uuid.UUID, reminders []*reminder.Reminder) error
	Recent(owner uuid.UUID, n int) []dispatch.Alarm
	Now() time.Time
	DefaultSnooze() time.Duration
	Health() error
}

type Config struct {
	Addr string
	// Token, when set, is required as "Authorization: Bearer <token>" on
	// every route except /healthz.
	Token        string
	AllowOrigins []string
}

type Server struct {
	cfg     Config
	backend Backend
	log     logx.Logger
	engine  *gin.Engine
}

func New(b Backend, cfg Config, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:     cfg,
		backend: b,
		log:     log.With(logx.String("comp", "statusapi")),
	}
	s.engine = s.routes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.log), requestLog(s.log))
	if len(s.cfg.AllowOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.AllowOrigins))
	}

	r.GET("/healthz", s.health)

	v1 := r.Group("/v1", bearerAuth(s.cfg.Token))
	v1.GET("/owners", s.listOwners)

	o := v1.Group("/owners/:owner", s.resolveOwner)
	o.GET("/reminders", s.listReminders)
	o.GET("/alarms", s.recentAlarms)
	o.PUT("/snapshot", s.putSnapshot)
	o.POST("/pause", s.setPaused(true))
	o.POST("/unpause", s.setPaused(false))

	rm := o.Group("/reminders/:id", s.resolveReminder)
	rm.POST("/ack", s.acknowledge)
	rm.POST("/snooze", s.snooze)
	rm.POST("/skip", s.changeSkip(true))
	rm.POST("/unskip", s.changeSkip(false))
	rm.POST("/enable", s.setEnabled(true))
	rm.POST("/disable", s.setEnabled(false))
	rm.DELETE("", s.deleteReminder)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("statusapi.listening", logx.String("addr", s.cfg.Addr), logx.Bool("auth", s.cfg.Token != ""))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("statusapi.shutdown_failed", logx.Err(err))
	}
	return nil
}
