package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/services/ledger"
	"creatorpay-engine/services/reconciler"
	"creatorpay-engine/services/selector"
	"creatorpay-engine/services/tracking"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle        State = "idle"
	StateSelecting   State = "selecting"
	StateObserving   State = "observing"
	StateReconciling State = "reconciling"
	StateStopped     State = "stopped"
)

const (
	DefaultMaxDuration  = 50 * time.Minute
	DefaultMaxClips     = 500
	DefaultDelayBetween = 2 * time.Second
)

// Config bounds one run. Zero values fall back to the defaults; a negative
// DelayBetween disables the pause.
type Config struct {
	MaxDuration  time.Duration
	MaxClips     int
	DelayBetween time.Duration
	BatchSize    int
	// Trigger is stored on the run record.
	Trigger string
}

func (c Config) withDefaults() Config {
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.MaxClips <= 0 {
		c.MaxClips = DefaultMaxClips
	}
	if c.DelayBetween == 0 {
		c.DelayBetween = DefaultDelayBetween
	}
	if c.DelayBetween < 0 {
		c.DelayBetween = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = selector.DefaultLimit
	}
	return c
}

// Driver runs the select, observe, reconcile loop for one process. Items are
// handled strictly one after another.
type Driver struct {
	selector   selector.Selector
	source     measure.Source
	recorder   tracking.Recorder
	reconciler reconciler.Reconciler
	tracer     trace.Tracer

	now     func() time.Time
	wait    func(context.Context, time.Duration) error
	onState func(State)
}

type DriverParams struct {
	fx.In
	Selector       selector.Selector
	Source         measure.Source `optional:"true"`
	Recorder       tracking.Recorder
	Reconciler     reconciler.Reconciler
	TracerProvider trace.TracerProvider `optional:"true"`
}

func NewDriver(p DriverParams) (*Driver, error) {
	if p.Source == nil {
		zap.L().Error("[Tracker] no measurement source configured")
		return nil, measure.ErrNoSource
	}

	tp := p.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Driver{
		selector:   p.Selector,
		source:     p.Source,
		recorder:   p.Recorder,
		reconciler: p.Reconciler,
		tracer:     tp.Tracer("creatorpay-engine/tracker"),
		now:        time.Now,
		wait:       sleep,
	}, nil
}

func (d *Driver) transition(s State) {
	if d.onState != nil {
		d.onState(s)
	}
}

// Run processes eligible clips until none are left, the time or clip budget
// is spent, or ctx ends. Per-clip problems are counted in the report; an
// error is returned only when the run could not start or selection itself
// failed, and the partial report is returned alongside it.
func (d *Driver) Run(ctx context.Context, cfg Config) (*Report, error) {
	if d.source == nil {
		return nil, measure.ErrNoSource
	}
	cfg = cfg.withDefaults()
	wait := d.wait
	if wait == nil {
		wait = sleep
	}

	ctx, span := d.tracer.Start(ctx, "tracker.run", trace.WithAttributes(
		attribute.Int64("tracker.max_duration_ms", cfg.MaxDuration.Milliseconds()),
		attribute.Int("tracker.max_clips", cfg.MaxClips),
	))
	defer span.End()

	start := d.now()
	report := newReport(start)
	logger := zap.L().With(zap.String("trigger", cfg.Trigger))
	logger.Info("[Tracker] run started",
		zap.Duration("max_duration", cfg.MaxDuration),
		zap.Int("max_clips", cfg.MaxClips),
		zap.Duration("delay_between", cfg.DelayBetween),
	)

	d.transition(StateIdle)

	var (
		queue   []selector.Item
		exclude []string
		reason  StopReason
		runErr  error
	)

loop:
	for {
		d.transition(StateSelecting)

		switch {
		case ctx.Err() != nil:
			reason = StopCancelled
			break loop
		case d.now().Sub(start) >= cfg.MaxDuration:
			reason = StopTimeLimit
			break loop
		case report.Processed >= cfg.MaxClips:
			reason = StopClipLimit
			break loop
		}

		if len(queue) == 0 {
			items, err := d.selector.Select(ctx, selector.Params{
				Limit:   min(cfg.BatchSize, cfg.MaxClips-report.Processed),
				Exclude: exclude,
			})
			if err != nil {
				if ctx.Err() != nil {
					reason = StopCancelled
					break loop
				}
				res := fatalResult(err)
				report.record(res)
				observeStep(res)
				runErr = fmt.Errorf("select clips: %w", err)
				break loop
			}
			if len(items) == 0 {
				reason = StopAllDone
				break loop
			}
			queue = items
		}

		item := queue[0]
		queue = queue[1:]
		exclude = append(exclude, item.ClipID)

		if report.Processed > 0 && cfg.DelayBetween > 0 {
			if err := wait(ctx, cfg.DelayBetween); err != nil {
				reason = StopCancelled
				break loop
			}
			if d.now().Sub(start) >= cfg.MaxDuration {
				reason = StopTimeLimit
				break loop
			}
		}

		res := d.step(ctx, item)
		report.record(res)
		observeStep(res)
	}

	d.transition(StateStopped)
	report.finish(reason, d.now())
	observeRun(report)

	span.SetAttributes(
		attribute.String("tracker.stop_reason", string(report.StopReason)),
		attribute.Int("tracker.processed", report.Processed),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Error("[Tracker] run aborted", zap.Error(runErr), zap.Int("processed", report.Processed))
		return report, runErr
	}

	logger.Info("[Tracker] run finished",
		zap.String("stop_reason", string(report.StopReason)),
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.String("earnings_added", report.EarningsAdded.String()),
		zap.Int64("views_gained", report.ViewsGained),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (d *Driver) step(ctx context.Context, item selector.Item) StepResult {
	ctx, span := d.tracer.Start(ctx, "tracker.cycle", trace.WithAttributes(
		attribute.String("clip.id", item.ClipID),
		attribute.String("clip.platform", string(item.Platform)),
		attribute.String("campaign.id", item.CampaignID),
	))
	defer span.End()

	logger := zap.L().With(
		zap.String("clip_id", item.ClipID),
		zap.String("campaign_id", item.CampaignID),
		zap.String("platform", string(item.Platform)),
	)

	d.transition(StateObserving)
	obs, err := d.source.Observe(ctx, item.URL, item.Platform)
	if err != nil {
		kind := measure.KindOf(err)
		span.RecordError(err)
		logger.Warn("[Tracker] measurement failed", zap.String("kind", string(kind)), zap.Error(err))
		return failedResult(item.ClipID, item.CampaignID, kind, err)
	}

	d.transition(StateReconciling)
	rec, err := d.recorder.Record(ctx, tracking.RecordParams{
		ClipID:     item.ClipID,
		Views:      clampCount(obs.Views),
		Likes:      clampCount(obs.Likes),
		Shares:     clampCount(obs.Shares),
		ObservedAt: d.now(),
	})
	if err != nil {
		if errors.Is(err, tracking.ErrClipNotFound) {
			logger.Warn("[Tracker] clip removed before recording", zap.Error(err))
			return skippedResult(item.ClipID, item.CampaignID, "clip_not_found", 0, err)
		}
		span.RecordError(err)
		logger.Error("[Tracker] failed to record sample", zap.Error(err))
		return failedResult(item.ClipID, item.CampaignID, "", err)
	}

	previous := rec.PreviousViews(item.InitialViews)
	viewsGained := max(rec.Sample.Views-previous, 0)

	out, err := d.reconciler.Reconcile(ctx, reconciler.Request{
		SampleID:      rec.Sample.ID,
		ClipID:        item.ClipID,
		UserID:        item.UserID,
		CampaignID:    item.CampaignID,
		Status:        item.SubmissionStatus,
		InitialViews:  item.InitialViews,
		CurrentViews:  rec.Sample.Views,
		PreviousViews: previous,
	})
	if err != nil {
		if reason, ok := raceReason(err); ok {
			logger.Warn("[Tracker] reconciliation skipped", zap.String("reason", reason), zap.Error(err))
			return skippedResult(item.ClipID, item.CampaignID, reason, viewsGained, err)
		}
		span.RecordError(err)
		logger.Error("[Tracker] reconciliation failed", zap.Error(err))
		return failedResult(item.ClipID, item.CampaignID, "", err)
	}

	res := okResult(item.ClipID, item.CampaignID, out)
	span.SetAttributes(attribute.String("earnings.delta", res.Earnings.String()))
	return res
}

// raceReason names the ledger errors that mean the clip's campaign, clip,
// submission or user changed after selection.
func raceReason(err error) (string, bool) {
	switch {
	case errors.Is(err, ledger.ErrCampaignNotFound):
		return "campaign_not_found", true
	case errors.Is(err, ledger.ErrCampaignInactive):
		return "campaign_inactive", true
	case errors.Is(err, ledger.ErrClipNotFound):
		return "clip_not_found", true
	case errors.Is(err, ledger.ErrSubmissionNotFound):
		return "submission_not_found", true
	case errors.Is(err, ledger.ErrBalanceNotFound):
		return "user_not_found", true
	case errors.Is(err, ledger.ErrDuplicateReference):
		return "duplicate_sample", true
	}
	return "", false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clampCount(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
