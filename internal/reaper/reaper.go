package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/store"
	"chatrelay/pkg/telemetry"
	"chatrelay/pkg/threads"
)

// defaultCron runs the sweep nightly at 03:00 UTC.
const defaultCron = "0 3 * * *"

// defaultMinAge keeps freshly created threads out of reach: a thread a
// user just opened and has not typed into yet must not be collected.
const defaultMinAge = 24 * time.Hour

// Start launches the orphaned-thread reaper if enabled. Threads with no
// messages accumulate when a user opens a fresh session, a thread is
// created for an upload or send that then fails, and the user walks
// away; the reaper deletes empty threads older than min_age. Returns a
// cancel func for shutdown.
func Start(ctx context.Context, cfg config.ReaperConfig, api threads.API) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("reaper_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("reaper_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid reaper cron expression: %s", cfg.Cron)
	}

	minAge := cfg.MinAge.Std()
	if minAge <= 0 {
		minAge = defaultMinAge
	}

	logger.Info("reaper_enabled", "cron", cronExpr, "min_age", minAge)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, minAge, api)
	return cancel, nil
}

// runScheduler computes the next tick for the configured cron expression
// with gronx and sleeps until then.
func runScheduler(ctx context.Context, cronExpr string, minAge time.Duration, api threads.API) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("reaper_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("reaper_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("reaper_scheduler_stopping")
			return
		}

		if err := RunOnce(ctx, minAge, api); err != nil {
			logger.Error("reaper_run_error", "error", err)
		}
	}
}

// RunOnce sweeps every known owner's threads and deletes the empty ones
// older than minAge. Per-thread failures are logged and skipped so one
// bad thread cannot stall the sweep.
func RunOnce(ctx context.Context, minAge time.Duration, api threads.API) error {
	owners, err := store.ListIdentities()
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}

	cutoff := time.Now().UTC().Add(-minAge).UnixNano()
	reaped := 0
	for _, o := range owners {
		ths, err := api.List(ctx, o.ID)
		if err != nil {
			logger.Warn("reaper_list_failed", "owner", o.ID, "error", err)
			continue
		}
		for _, th := range ths {
			if th.UpdatedTS >= cutoff {
				continue
			}
			msgs, err := api.Messages(ctx, th.ID)
			if err != nil {
				logger.Warn("reaper_messages_failed", "thread", th.ID, "error", err)
				continue
			}
			if len(msgs) > 0 {
				continue
			}
			if err := api.Delete(ctx, th.ID); err != nil {
				logger.Warn("reaper_delete_failed", "thread", th.ID, "error", err)
				continue
			}
			telemetry.ThreadsReapedTotal.Inc()
			reaped++
			logger.Info("reaper_thread_deleted", "owner", o.ID, "thread", th.ID)
		}
	}
	logger.Info("reaper_run_complete", "reaped", reaped, "owners", len(owners))
	return nil
}
