package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"petreminder/internal/config"
	"petreminder/pkg/logx"
)

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("reconcile."+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("reconcile."+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}

// restartCron replaces the reconcile scheduler. Cron evaluates the schedule
// in the configured timezone.
func (a *App) restartCron(rt *config.Runtime) {
	a.cronMu.Lock()
	defer a.cronMu.Unlock()
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	cl := cronLogger{log: a.log}
	c := cron.New(
		cron.WithLocation(rt.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(rt.Reconcile, cron.FuncJob(a.reconcile))
	c.Start()
	a.cron = c
	a.log.Info("reconcile.scheduled", logx.String("spec", rt.ReconcileSpec), logx.String("tz", rt.Location.String()))
}

func (a *App) stopCron(ctx context.Context) {
	a.cronMu.Lock()
	c := a.cron
	a.cron = nil
	a.cronMu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// reconcile re-arms every owner and writes its snapshot. Arm failures from
// earlier passes are retried here.
func (a *App) reconcile() {
	ctx := context.Background()
	if a.sup != nil {
		ctx = a.sup.Context()
	}
	if ctx.Err() != nil {
		return
	}
	owners := a.ownerList()
	failed := 0
	for _, o := range owners {
		if err := o.Engine.ArmAll(ctx); err != nil {
			failed++
			a.log.Warn("reconcile.arm_failed", logx.Owner(o.ID), logx.Err(err))
		}
		if err := a.saveOwner(ctx, o); err != nil {
			failed++
			a.log.Warn("reconcile.save_failed", logx.Owner(o.ID), logx.Err(err))
		}
	}
	a.log.Info("reconcile.done", logx.Int("owners", len(owners)), logx.Int("failed", failed))
}
