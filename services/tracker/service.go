package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creatorpay-engine/pkg/config"
	"creatorpay-engine/pkg/db/option"
	"creatorpay-engine/pkg/errutil"
	"creatorpay-engine/pkg/rediskey"
	"creatorpay-engine/pkg/repository"
	"creatorpay-engine/pkg/runlock"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrRunInProgress = errutil.Conflict("tracking run already in progress", nil)

const lockScope = "global"

var byCreatedDesc = option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"})

// Runner is what triggers call.
type Runner interface {
	Run(ctx context.Context, cfg Config) (*Report, error)
}

type loop interface {
	Run(ctx context.Context, cfg Config) (*Report, error)
}

// Service wraps the Driver with a cluster-wide run lock and a persisted run
// record.
type Service struct {
	driver  loop
	locker  runlock.Locker
	runs    repository.Repository[Run]
	node    *snowflake.Node
	lockTTL time.Duration
	now     func() time.Time
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Driver *Driver
	Locker runlock.Locker
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		driver:  p.Driver,
		locker:  p.Locker,
		runs:    repository.ProvideStore[Run](p.DB),
		node:    p.Node,
		lockTTL: p.Config.Tracking.LockTTL,
		now:     time.Now,
	}
}

// Run executes one tracking run unless another process holds the run lock,
// in which case the attempt is recorded as skipped and ErrRunInProgress is
// returned.
func (s *Service) Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	runID := s.node.Generate().String()
	logger := zap.L().With(zap.String("run_id", runID), zap.String("trigger", cfg.Trigger))

	// The lock must outlive the run so a slow run is never overlapped.
	ttl := max(s.lockTTL, cfg.MaxDuration+time.Minute)
	release, err := s.locker.Acquire(ctx, rediskey.BuildTrackingRunLockKey(lockScope), ttl)
	if err != nil {
		if errors.Is(err, runlock.ErrNotAcquired) {
			logger.Warn("[Tracker] run already in progress, skipping")
			s.recordSkipped(ctx, runID, cfg.Trigger)
			return nil, ErrRunInProgress
		}
		logger.Error("[Tracker] failed to acquire run lock", zap.Error(err))
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[Tracker] failed to release run lock", zap.Error(err))
		}
	}()

	startedAt := s.now()
	run := &Run{
		ID:        runID,
		Trigger:   cfg.Trigger,
		Status:    RunStatusRunning,
		StartedAt: &startedAt,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		logger.Error("[Tracker] failed to create run record", zap.Error(err))
		return nil, err
	}

	report, runErr := s.driver.Run(ctx, cfg)
	if report != nil {
		report.RunID = runID
	}

	finishedAt := s.now()
	update := map[string]any{
		"status":      RunStatusSuccess,
		"finished_at": &finishedAt,
	}
	if report != nil {
		update["stop_reason"] = report.StopReason
		if raw, err := json.Marshal(report); err == nil {
			update["metadata"] = datatypes.JSON(raw)
		}
	}
	if runErr != nil {
		update["status"] = RunStatusFailed
		update["error_msg"] = runErr.Error()
	}
	if err := s.runs.Update(context.WithoutCancel(ctx), runID, update); err != nil {
		logger.Error("[Tracker] failed to update run record", zap.Error(err))
	}

	return report, runErr
}

func (s *Service) recordSkipped(ctx context.Context, runID, trigger string) {
	now := s.now()
	run := &Run{
		ID:         runID,
		Trigger:    trigger,
		Status:     RunStatusSkipped,
		StartedAt:  &now,
		FinishedAt: &now,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		zap.L().Warn("[Tracker] failed to record skipped run", zap.String("run_id", runID), zap.Error(err))
	}
}

// LastRun returns the most recent run record, or nil before the first run.
func (s *Service) LastRun(ctx context.Context) (*Run, error) {
	return s.runs.FindOne(ctx, &Run{}, byCreatedDesc)
}
