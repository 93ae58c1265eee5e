package reconciler

import (
	"creatorpay-engine/services/ledger"
	"creatorpay-engine/services/submission"

	"github.com/shopspring/decimal"
)

// Reason says why a decision moves no money.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNotApproved     Reason = "not_approved"
	ReasonNoGrowth        Reason = "no_growth"
	ReasonClipCapReached  Reason = "clip_cap_reached"
	ReasonBudgetExhausted Reason = "budget_exhausted"
)

// DefaultClipShareCap is the largest fraction of a campaign budget one clip
// may earn over its lifetime.
var DefaultClipShareCap = decimal.RequireFromString("0.30")

var perMille = decimal.NewFromInt(1000)

type Input struct {
	Status        submission.Status
	InitialViews  int64
	CurrentViews  int64
	PreviousViews int64
	PayoutRate    decimal.Decimal
	Budget        decimal.Decimal
	Spent         decimal.Decimal
	ClipEarnings  decimal.Decimal
	ClipShareCap  decimal.Decimal
}

type Decision struct {
	ViewsGained  int64           `json:"views_gained"`
	ViewGrowth   int64           `json:"view_growth"`
	Target       decimal.Decimal `json:"target"`
	CappedTarget decimal.Decimal `json:"capped_target"`
	Delta        decimal.Decimal `json:"delta"`
	Reason       Reason          `json:"reason,omitempty"`
}

// Calculate derives the earnings delta for one fresh sample. Lifetime
// earnings are always recomputed from growth over the submission baseline,
// then clamped by the per-clip cap, by what the clip already earned and by
// the campaign's remaining budget. The delta is never negative.
func Calculate(in Input) Decision {
	d := Decision{
		ViewsGained:  max(in.CurrentViews-in.PreviousViews, 0),
		Target:       decimal.Zero,
		CappedTarget: decimal.Zero,
		Delta:        decimal.Zero,
	}
	if !in.Status.Accrues() {
		d.Reason = ReasonNotApproved
		return d
	}

	shareCap := in.ClipShareCap
	if !shareCap.IsPositive() {
		shareCap = DefaultClipShareCap
	}

	d.ViewGrowth = in.CurrentViews - in.InitialViews
	d.Target = decimal.NewFromInt(d.ViewGrowth).Div(perMille).Mul(in.PayoutRate)
	d.CappedTarget = decimal.Min(d.Target, shareCap.Mul(in.Budget))

	delta := d.CappedTarget.Sub(in.ClipEarnings)
	if !delta.IsPositive() {
		d.Reason = ReasonNoGrowth
		if d.Target.GreaterThan(d.CappedTarget) {
			d.Reason = ReasonClipCapReached
		}
		return d
	}

	remaining := in.Budget.Sub(in.Spent)
	if !remaining.IsPositive() {
		d.Reason = ReasonBudgetExhausted
		return d
	}
	delta = decimal.Min(delta, remaining).Truncate(ledger.Precision)
	if !delta.IsPositive() {
		d.Reason = ReasonNoGrowth
		return d
	}

	d.Delta = delta
	return d
}

func (d Decision) Applies() bool {
	return d.Delta.IsPositive()
}
