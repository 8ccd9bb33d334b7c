package session

import (
	"context"
	"time"

	"github.com/itsneelabh/taskctl/core"
	"github.com/robfig/cron/v3"
)

// Reaper periodically sweeps expired sessions from a MemoryStore on a cron
// schedule, rather than a per-store background ticker goroutine — the
// SPEC_FULL.md-resolved answer to session GC: lazy expiry on Load (handled
// by MemoryStore itself) plus a coarse periodic sweep for sessions that are
// never loaded again.
type Reaper struct {
	store  *MemoryStore
	cron   *cron.Cron
	logger core.Logger
}

// NewReaper schedules a sweep of store according to cronExpr (standard
// 5-field cron). A nil/empty cronExpr disables scheduling; call Sweep
// manually instead.
func NewReaper(store *MemoryStore, cronExpr string, logger core.Logger) (*Reaper, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	r := &Reaper{store: store, logger: logger}

	if cronExpr == "" {
		return r, nil
	}

	c := cron.New()
	_, err := c.AddFunc(cronExpr, func() {
		removed := r.Sweep()
		r.logger.Debug("session reaper sweep", map[string]interface{}{"removed": removed})
	})
	if err != nil {
		return nil, core.NewFrameworkError("session.NewReaper", "invalid_configuration", err)
	}
	r.cron = c
	return r, nil
}

// Start begins the cron schedule. No-op if no schedule was configured.
func (r *Reaper) Start(ctx context.Context) {
	if r.cron == nil {
		return
	}
	r.cron.Start()
	go func() {
		<-ctx.Done()
		stopCtx := r.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
		}
	}()
}

// Sweep removes expired sessions immediately and returns the count removed.
func (r *Reaper) Sweep() int {
	return r.store.sweepExpired(time.Now())
}
