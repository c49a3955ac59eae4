package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/time/rate"

	"github.com/MartinInglin/da-bubble-sub000/pkg/config"
	"github.com/MartinInglin/da-bubble-sub000/pkg/directory"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
)

// Reconciler sweeps the denormalized MinimalUser projections embedded in
// channel member lists and conversation participant lists back in line
// with the directory. The projections are caches with a staleness window
// bounded by the sweep schedule; anything needing authoritative profile
// data must read the directory instead.
type Reconciler struct {
	cfg     config.ReconcileConfig
	db      store.Durable
	dir     *directory.Directory
	limiter *rate.Limiter
}

// New returns a reconciler. Writes during a sweep are paced by the
// configured limiter so a large drift repair does not starve foreground
// mutations.
func New(cfg config.ReconcileConfig, db store.Durable, dir *directory.Directory) *Reconciler {
	rps := cfg.WritesPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Reconciler{cfg: cfg, db: db, dir: dir, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Start starts the sweep scheduler if enabled. Returns a cancel func.
func (r *Reconciler) Start(ctx context.Context) (context.CancelFunc, error) {
	if !r.cfg.Enabled {
		logger.Info("reconcile_disabled")
		return func() {}, nil
	}
	cronExpr := r.cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("reconcile_invalid_cron", "cron", r.cfg.Cron)
		return nil, fmt.Errorf("invalid reconcile cron expression: %s", r.cfg.Cron)
	}
	ctx2, cancel := context.WithCancel(ctx)
	go r.runScheduler(ctx2, cronExpr)
	logger.Info("reconcile_scheduler_started", "cron", cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick with gronx and sleeps until then.
func (r *Reconciler) runScheduler(ctx context.Context, cronExpr string) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("reconcile_next_tick_failed", "cron", cronExpr, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("reconcile_scheduler_stopping")
			return
		case <-time.After(next.Sub(now)):
		}
		if err := r.RunOnce(ctx); err != nil {
			logger.Error("reconcile_run_failed", "error", err)
		}
	}
}

// RunOnce performs a single sweep over all channels and conversations.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	users := map[string]models.MinimalUser{}
	for u, err := range r.dir.ListAll(ctx) {
		if err != nil {
			return err
		}
		users[u.ID] = u.Minimal()
	}

	repaired := 0
	for raw, err := range r.db.List(ctx, store.Channels) {
		if err != nil {
			return err
		}
		var ch models.Channel
		if err := json.Unmarshal(raw, &ch); err != nil {
			continue
		}
		if refresh(ch.Members, users) {
			if err := r.write(ctx, store.Channels, ch.ID, ch); err != nil {
				return err
			}
			repaired++
		}
	}
	for raw, err := range r.db.List(ctx, store.DirectMessages) {
		if err != nil {
			return err
		}
		var dm models.DirectMessage
		if err := json.Unmarshal(raw, &dm); err != nil {
			continue
		}
		if refresh(dm.Participants, users) {
			if err := r.write(ctx, store.DirectMessages, dm.ID, dm); err != nil {
				return err
			}
			repaired++
		}
	}
	logger.Info("reconcile_run_done", "repaired", repaired)
	return nil
}

// refresh rewrites drifted projections in place and reports whether
// anything changed. Projections of unknown users are left alone.
func refresh(projections []models.MinimalUser, users map[string]models.MinimalUser) bool {
	changed := false
	for i, p := range projections {
		cur, ok := users[p.ID]
		if !ok {
			continue
		}
		if p != cur {
			projections[i] = cur
			changed = true
		}
	}
	return changed
}

func (r *Reconciler) write(ctx context.Context, collection, id string, v any) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	return r.db.Write(ctx, collection, id, b)
}
