package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creatorpay-engine/pkg/config"
	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RunPayload is the body of a tracking:run task. Zero fields take the
// current configuration.
type RunPayload struct {
	MaxDurationMs  int64  `json:"max_duration_ms,omitempty"`
	MaxClips       int    `json:"max_clips,omitempty"`
	DelayBetweenMs int64  `json:"delay_between_ms,omitempty"`
	Trigger        string `json:"trigger,omitempty"`
}

func NewRunTask(p RunPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.TrackingRun, payload), nil
}

// Config resolves the payload against base.
func (p RunPayload) Config(base config.Tracking) Config {
	cfg := Config{
		MaxDuration:  base.MaxDuration,
		MaxClips:     base.MaxClips,
		DelayBetween: base.DelayBetween,
		BatchSize:    base.BatchSize,
		Trigger:      p.Trigger,
	}
	if p.MaxDurationMs > 0 {
		cfg.MaxDuration = time.Duration(p.MaxDurationMs) * time.Millisecond
	}
	if p.MaxClips > 0 {
		cfg.MaxClips = p.MaxClips
	}
	if p.DelayBetweenMs > 0 {
		cfg.DelayBetween = time.Duration(p.DelayBetweenMs) * time.Millisecond
	}
	if cfg.Trigger == "" {
		cfg.Trigger = "task"
	}
	return cfg
}

type Handler struct {
	runner Runner
	config func() *config.Config
}

func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner, config: config.Current}
}

// HandleRunTask is registered on the asynq mux. A run that finds another in
// progress succeeds quietly; a missing measurement source is not retried.
func (h *Handler) HandleRunTask(ctx context.Context, t *asynq.Task) error {
	var payload RunPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			zap.L().Error("[Tracker] invalid run payload", zap.Error(err))
			return fmt.Errorf("decode run payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	var base config.Tracking
	if cfg := h.config(); cfg != nil {
		base = cfg.Tracking
	}

	report, err := h.runner.Run(ctx, payload.Config(base))
	switch {
	case errors.Is(err, ErrRunInProgress):
		return nil
	case errors.Is(err, measure.ErrNoSource):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case err != nil:
		return err
	}

	zap.L().Info("[Tracker] task finished",
		zap.String("run_id", report.RunID),
		zap.String("stop_reason", string(report.StopReason)),
		zap.Int("processed", report.Processed),
	)
	return nil
}
