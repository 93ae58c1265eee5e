package tracker

import (
	"context"
	"errors"
	"time"

	"creatorpay-engine/pkg/config"
	"creatorpay-engine/pkg/featureflags"
	"creatorpay-engine/pkg/task"

	"github.com/go-co-op/gocron/v2"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Scheduler enqueues a tracking run every TRACKING.INTERVAL. The unique
// option keeps at most one pending run in the queue.
type Scheduler struct {
	enqueuer task.Enqueuer
	flags    featureflags.FeatureFlag
	config   func() *config.Config
}

type SchedulerParams struct {
	fx.In
	Enqueuer task.Enqueuer
	Flags    featureflags.FeatureFlag `optional:"true"`
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		enqueuer: p.Enqueuer,
		flags:    p.Flags,
		config:   config.Current,
	}
}

// Tick enqueues one run unless the kill switch is off. It reports whether a
// task was enqueued.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	cfg := s.config()
	if cfg == nil {
		return false, nil
	}
	tracking := cfg.Tracking

	if s.flags != nil && !s.flags.IsEnabled(ctx, tracking.EnabledFlag, true) {
		zap.L().Info("[Scheduler] tracking disabled by feature flag", zap.String("flag", tracking.EnabledFlag))
		return false, nil
	}

	t, err := NewRunTask(RunPayload{
		MaxDurationMs:  tracking.MaxDuration.Milliseconds(),
		MaxClips:       tracking.MaxClips,
		DelayBetweenMs: tracking.DelayBetween.Milliseconds(),
		Trigger:        "schedule",
	})
	if err != nil {
		return false, err
	}

	timeout := tracking.MaxDuration + time.Minute
	info, err := s.enqueuer.Enqueue(ctx, t,
		asynq.Queue(task.QueueTracking),
		asynq.Unique(max(tracking.Interval, timeout)),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			zap.L().Info("[Scheduler] tracking run already queued")
			return false, nil
		}
		zap.L().Error("[Scheduler] failed to enqueue tracking run", zap.Error(err))
		return false, err
	}

	zap.L().Info("[Scheduler] enqueued tracking run", zap.String("task_id", info.ID), zap.String("queue", info.Queue))
	return true, nil
}

// StartScheduler registers the periodic job with gocron on fx start.
func StartScheduler(lc fx.Lifecycle, cfg *config.Config, s *Scheduler) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Tracking.Interval),
		gocron.NewTask(func(ctx context.Context) {
			if _, err := s.Tick(ctx); err != nil {
				zap.L().Warn("[Scheduler] tick failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName("tracking-run"),
	)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start()
			zap.L().Info("[Scheduler] started tracking scheduler", zap.Duration("interval", cfg.Tracking.Interval))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Warn("[Scheduler] stopped")
			return sched.Shutdown()
		},
	})
	return nil
}
