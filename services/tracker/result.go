package tracker

import (
	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/services/reconciler"

	"github.com/shopspring/decimal"
)

type StepKind string

const (
	// StepOk means the clip was measured, recorded and reconciled, even if
	// no money moved.
	StepOk StepKind = "ok"
	// StepSkipped means the sample was recorded but reconciliation was
	// abandoned because campaign, clip or user changed underneath it.
	StepSkipped StepKind = "skipped"
	// StepFailed means the clip could not be measured or recorded.
	StepFailed StepKind = "failed"
	// StepFatal ends the run.
	StepFatal StepKind = "fatal"
)

// StepResult is the outcome of one cycle. Only StepFatal stops the loop.
type StepResult struct {
	Kind        StepKind
	ClipID      string
	CampaignID  string
	Reason      string
	MeasureKind measure.Kind
	Decision    reconciler.Decision
	Earnings    decimal.Decimal
	ViewsGained int64
	Err         error
}

func okResult(clipID, campaignID string, out *reconciler.Outcome) StepResult {
	res := StepResult{
		Kind:        StepOk,
		ClipID:      clipID,
		CampaignID:  campaignID,
		Decision:    out.Decision,
		Reason:      string(out.Decision.Reason),
		Earnings:    decimal.Zero,
		ViewsGained: out.Decision.ViewsGained,
	}
	if out.Applied() {
		res.Earnings = out.Credit.Amount
	}
	return res
}

func skippedResult(clipID, campaignID, reason string, viewsGained int64, err error) StepResult {
	return StepResult{
		Kind:        StepSkipped,
		ClipID:      clipID,
		CampaignID:  campaignID,
		Reason:      reason,
		Earnings:    decimal.Zero,
		ViewsGained: viewsGained,
		Err:         err,
	}
}

func failedResult(clipID, campaignID string, kind measure.Kind, err error) StepResult {
	return StepResult{
		Kind:        StepFailed,
		ClipID:      clipID,
		CampaignID:  campaignID,
		Reason:      string(kind),
		MeasureKind: kind,
		Earnings:    decimal.Zero,
		Err:         err,
	}
}

func fatalResult(err error) StepResult {
	return StepResult{Kind: StepFatal, Reason: "select", Earnings: decimal.Zero, Err: err}
}
