package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/pkg/runlock"
	"creatorpay-engine/services/reconciler"
	"creatorpay-engine/services/selector"
	"creatorpay-engine/services/submission"
	"creatorpay-engine/services/tracking"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type selectorMock struct {
	selectFn func(ctx context.Context, p selector.Params) ([]selector.Item, error)
	calls    []selector.Params
}

func (m *selectorMock) Select(ctx context.Context, p selector.Params) ([]selector.Item, error) {
	m.calls = append(m.calls, selector.Params{Limit: p.Limit, Exclude: append([]string(nil), p.Exclude...)})
	if m.selectFn != nil {
		return m.selectFn(ctx, p)
	}
	return nil, nil
}

// batches returns each batch once, then nothing.
func batches(items ...[]selector.Item) *selectorMock {
	var n int
	return &selectorMock{
		selectFn: func(context.Context, selector.Params) ([]selector.Item, error) {
			if n >= len(items) {
				return nil, nil
			}
			n++
			return items[n-1], nil
		},
	}
}

type recorderMock struct {
	mu     sync.Mutex
	latest map[string]*tracking.Sample
	seq    int
	err    error
}

func (m *recorderMock) Record(ctx context.Context, p tracking.RecordParams) (*tracking.RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.latest == nil {
		m.latest = map[string]*tracking.Sample{}
	}
	m.seq++
	sample := tracking.Sample{
		ID:         fmt.Sprintf("sample-%d", m.seq),
		ClipID:     p.ClipID,
		ObservedAt: p.ObservedAt,
		Views:      p.Views,
		Likes:      p.Likes,
		Shares:     p.Shares,
	}
	res := &tracking.RecordResult{Sample: sample, Previous: m.latest[p.ClipID]}
	m.latest[p.ClipID] = &sample
	return res, nil
}

type reconcilerMock struct {
	reconcileFn func(ctx context.Context, req reconciler.Request) (*reconciler.Outcome, error)
	requests    []reconciler.Request
}

func (m *reconcilerMock) Reconcile(ctx context.Context, req reconciler.Request) (*reconciler.Outcome, error) {
	m.requests = append(m.requests, req)
	if m.reconcileFn != nil {
		return m.reconcileFn(ctx, req)
	}
	return &reconciler.Outcome{Decision: reconciler.Calculate(reconciler.Input{
		Status:        req.Status,
		InitialViews:  req.InitialViews,
		CurrentViews:  req.CurrentViews,
		PreviousViews: req.PreviousViews,
	})}, nil
}

type loopMock struct {
	runFn func(ctx context.Context, cfg Config) (*Report, error)
	cfgs  []Config
}

func (m *loopMock) Run(ctx context.Context, cfg Config) (*Report, error) {
	m.cfgs = append(m.cfgs, cfg)
	if m.runFn != nil {
		return m.runFn(ctx, cfg)
	}
	r := newReport(time.Now())
	r.finish(StopAllDone, time.Now())
	return r, nil
}

type lockerMock struct {
	held     bool
	err      error
	key      string
	ttl      time.Duration
	released int
}

func (m *lockerMock) Acquire(ctx context.Context, key string, ttl time.Duration) (runlock.ReleaseFunc, error) {
	m.key, m.ttl = key, ttl
	if m.err != nil {
		return nil, m.err
	}
	if m.held {
		return nil, runlock.ErrNotAcquired
	}
	m.held = true
	return func(context.Context) error {
		m.held = false
		m.released++
		return nil
	}, nil
}

type runnerMock struct {
	runFn func(ctx context.Context, cfg Config) (*Report, error)
	cfgs  []Config
}

func (m *runnerMock) Run(ctx context.Context, cfg Config) (*Report, error) {
	m.cfgs = append(m.cfgs, cfg)
	if m.runFn != nil {
		return m.runFn(ctx, cfg)
	}
	return &Report{StopReason: StopAllDone}, nil
}

type enqueuerMock struct {
	enqueueFn func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	tasks     []*asynq.Task
	opts      [][]asynq.Option
}

func (m *enqueuerMock) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.tasks = append(m.tasks, task)
	m.opts = append(m.opts, opts)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, task, opts...)
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: "tracking"}, nil
}

type flagMock struct {
	enabled bool
	seen    string
}

func (m *flagMock) IsEnabled(ctx context.Context, feature string, fallback bool) bool {
	m.seen = feature
	return m.enabled
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time {
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func item(clipID string, initial int64) selector.Item {
	return selector.Item{
		ClipID:           clipID,
		URL:              "https://www.tiktok.com/@creator/video/" + clipID,
		Platform:         measure.PlatformTikTok,
		SubmissionID:     "sub-" + clipID,
		SubmissionStatus: submission.StatusApproved,
		InitialViews:     initial,
		UserID:           "user-1",
		CampaignID:       "cp-1",
	}
}
