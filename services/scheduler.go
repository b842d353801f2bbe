// services/scheduler.go
package services

import (
	"context"
	"time"

	"progress-ledger/utils"

	"github.com/go-co-op/gocron/v2"
)

// ScheduleConfig controls the background jobs. A zero interval disables a job.
type ScheduleConfig struct {
	EvalRetryInterval time.Duration
	SweepInterval     time.Duration
	ArchiveInterval   time.Duration
}

// StartScheduler registers the evaluation retry, the achievement sweep and,
// when an archiver is given, the ledger archive job.
func StartScheduler(ctx context.Context, cfg ScheduleConfig, d *Dispatcher, archiver *LedgerArchiver, log *utils.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	if cfg.EvalRetryInterval > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.EvalRetryInterval),
			gocron.NewTask(func() {
				retried, recovered := d.RetryPending(ctx)
				if retried > 0 {
					log.Info("[Scheduler] evaluation retry", "retried", retried, "recovered", recovered)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	if cfg.SweepInterval > 0 {
		// Look back two intervals so a slow previous run leaves no gap.
		window := 2 * cfg.SweepInterval
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.SweepInterval),
			gocron.NewTask(func() {
				n, err := d.Sweep(ctx, time.Now().UTC().Add(-window))
				if err != nil {
					log.Error("[Scheduler] achievement sweep failed", "error", err)
					return
				}
				log.Debug("[Scheduler] achievement sweep", "users", n)
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	if archiver != nil && cfg.ArchiveInterval > 0 {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.ArchiveInterval),
			gocron.NewTask(func() {
				n, err := archiver.ExportPending(ctx)
				if err != nil {
					log.Error("[Scheduler] ledger archive failed", "exported", n, "error", err)
					return
				}
				if n > 0 {
					log.Info("[Scheduler] ledger archive", "exported", n)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
