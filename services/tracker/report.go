package tracker

import (
	"time"

	"creatorpay-engine/pkg/measure"

	"github.com/shopspring/decimal"
)

type StopReason string

const (
	StopAllDone   StopReason = "all_done"
	StopTimeLimit StopReason = "time_limit"
	StopClipLimit StopReason = "clip_limit"
	StopCancelled StopReason = "cancelled"
	StopFatal     StopReason = "fatal"
)

// Report aggregates one run. Processed counts every clip attempted and
// equals Succeeded + Skipped + Failed. ViewsGained sums the growth of every
// recorded sample, credited or not.
type Report struct {
	RunID          string               `json:"run_id,omitempty"`
	Processed      int                  `json:"processed"`
	Succeeded      int                  `json:"succeeded"`
	Skipped        int                  `json:"skipped"`
	Failed         int                  `json:"failed"`
	EarningsAdded  decimal.Decimal      `json:"earnings_added"`
	ViewsGained    int64                `json:"views_gained"`
	FailuresByKind map[measure.Kind]int `json:"failures_by_kind,omitempty"`
	StopReason     StopReason           `json:"stop_reason"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	Duration       time.Duration        `json:"duration"`
}

func newReport(start time.Time) *Report {
	return &Report{
		EarningsAdded:  decimal.Zero,
		FailuresByKind: map[measure.Kind]int{},
		StartedAt:      start,
	}
}

func (r *Report) record(res StepResult) {
	switch res.Kind {
	case StepOk:
		r.Processed++
		r.Succeeded++
	case StepSkipped:
		r.Processed++
		r.Skipped++
	case StepFailed:
		r.Processed++
		r.Failed++
		if res.MeasureKind != "" {
			r.FailuresByKind[res.MeasureKind]++
		}
		return
	case StepFatal:
		r.StopReason = StopFatal
		return
	}
	r.EarningsAdded = r.EarningsAdded.Add(res.Earnings)
	r.ViewsGained += res.ViewsGained
}

func (r *Report) finish(reason StopReason, at time.Time) {
	if r.StopReason == "" {
		r.StopReason = reason
	}
	r.FinishedAt = at
	r.Duration = at.Sub(r.StartedAt)
}
