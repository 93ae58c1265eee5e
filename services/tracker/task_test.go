package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"creatorpay-engine/pkg/config"
	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/pkg/taskname"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Tracking = config.Tracking{
		MaxDuration:  50 * time.Minute,
		MaxClips:     500,
		DelayBetween: 2 * time.Second,
		BatchSize:    25,
		Interval:     time.Hour,
		EnabledFlag:  "tracking_enabled",
	}
	return cfg
}

func TestRunPayloadConfig(t *testing.T) {
	base := testConfig().Tracking

	cfg := RunPayload{}.Config(base)
	require.Equal(t, 50*time.Minute, cfg.MaxDuration)
	require.Equal(t, 500, cfg.MaxClips)
	require.Equal(t, 2*time.Second, cfg.DelayBetween)
	require.Equal(t, 25, cfg.BatchSize)
	require.Equal(t, "task", cfg.Trigger)

	cfg = RunPayload{MaxDurationMs: 60000, MaxClips: 3, DelayBetweenMs: 10, Trigger: "manual"}.Config(base)
	require.Equal(t, time.Minute, cfg.MaxDuration)
	require.Equal(t, 3, cfg.MaxClips)
	require.Equal(t, 10*time.Millisecond, cfg.DelayBetween)
	require.Equal(t, "manual", cfg.Trigger)
}

func newTestHandler(runner Runner) *Handler {
	h := NewHandler(runner)
	h.config = testConfig
	return h
}

func TestHandleRunTask(t *testing.T) {
	runner := &runnerMock{}
	h := newTestHandler(runner)

	task, err := NewRunTask(RunPayload{MaxClips: 7, Trigger: "manual"})
	require.NoError(t, err)
	require.Equal(t, taskname.TrackingRun, task.Type())

	require.NoError(t, h.HandleRunTask(context.Background(), task))
	require.Len(t, runner.cfgs, 1)
	require.Equal(t, 7, runner.cfgs[0].MaxClips)
	require.Equal(t, 50*time.Minute, runner.cfgs[0].MaxDuration)
}

func TestHandleRunTaskErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{name: "run in progress", err: ErrRunInProgress},
		{name: "no source", err: measure.ErrNoSource, wantErr: true, skipRetry: true},
		{name: "other", err: errors.New("db down"), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(&runnerMock{
				runFn: func(context.Context, Config) (*Report, error) { return nil, tc.err },
			})

			err := h.HandleRunTask(context.Background(), asynq.NewTask(taskname.TrackingRun, nil))
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestHandleRunTaskInvalidPayload(t *testing.T) {
	runner := &runnerMock{}
	h := newTestHandler(runner)

	err := h.HandleRunTask(context.Background(), asynq.NewTask(taskname.TrackingRun, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, runner.cfgs)
}
