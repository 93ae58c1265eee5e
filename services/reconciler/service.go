package reconciler

import (
	"context"
	"encoding/json"

	"creatorpay-engine/pkg/config"
	"creatorpay-engine/services/ledger"
	"creatorpay-engine/services/submission"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Reconciler turns one recorded sample into at most one credit.
type Reconciler interface {
	Reconcile(ctx context.Context, req Request) (*Outcome, error)
}

// Request describes a freshly recorded sample. SampleID doubles as the
// credit reference, so one sample can never be paid twice.
type Request struct {
	SampleID      string
	ClipID        string
	UserID        string
	CampaignID    string
	Status        submission.Status
	InitialViews  int64
	CurrentViews  int64
	PreviousViews int64
}

type Outcome struct {
	Decision Decision
	Credit   *ledger.CreditResult
}

// Applied reports whether money moved.
func (o *Outcome) Applied() bool {
	return o != nil && o.Credit.Applied()
}

type Service struct {
	store    ledger.BalanceStore
	shareCap decimal.Decimal
}

type ServiceParams struct {
	fx.In
	Store  ledger.BalanceStore
	Config *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	shareCap := DefaultClipShareCap
	if p.Config != nil && p.Config.Tracking.ClipShareCap > 0 {
		shareCap = decimal.NewFromFloat(p.Config.Tracking.ClipShareCap)
	}
	return &Service{store: p.Store, shareCap: shareCap}
}

// Reconcile computes the delta for req against the locked campaign, clip,
// submission and balance rows and credits it. Submissions that do not accrue return without
// touching the store. Errors from the store mean nothing was applied.
func (s *Service) Reconcile(ctx context.Context, req Request) (*Outcome, error) {
	logger := zap.L().With(
		zap.String("sample_id", req.SampleID),
		zap.String("clip_id", req.ClipID),
		zap.String("campaign_id", req.CampaignID),
	)

	out := &Outcome{}
	if !req.Status.Accrues() {
		out.Decision = Calculate(s.input(req, ledger.Snapshot{}))
		logger.Debug("[Reconciler] submission does not accrue", zap.String("status", string(req.Status)))
		return out, nil
	}

	plan := func(snap ledger.Snapshot) (decimal.Decimal, error) {
		out.Decision = Calculate(s.input(req, snap))
		return out.Decision.Delta, nil
	}

	credit, err := s.store.Credit(ctx, ledger.CreditRequest{
		ReferenceID: req.SampleID,
		CampaignID:  req.CampaignID,
		ClipID:      req.ClipID,
		UserID:      req.UserID,
		ViewsGained: max(req.CurrentViews-req.PreviousViews, 0),
		Metadata:    metadata(req),
	}, plan)
	if err != nil {
		return nil, err
	}
	out.Credit = credit

	if !out.Applied() {
		logger.Debug("[Reconciler] no earnings to apply", zap.String("reason", string(out.Decision.Reason)))
	}
	return out, nil
}

// input prefers the submission status read under lock, so a submission
// rejected after selection earns nothing.
func (s *Service) input(req Request, snap ledger.Snapshot) Input {
	status := req.Status
	if snap.Submission.Status != "" {
		status = snap.Submission.Status
	}
	return Input{
		Status:        status,
		InitialViews:  req.InitialViews,
		CurrentViews:  req.CurrentViews,
		PreviousViews: req.PreviousViews,
		PayoutRate:    snap.Campaign.PayoutRate,
		Budget:        snap.Campaign.Budget,
		Spent:         snap.Campaign.Spent,
		ClipEarnings:  snap.ClipEarnings,
		ClipShareCap:  s.shareCap,
	}
}

func metadata(req Request) datatypes.JSON {
	raw, err := json.Marshal(map[string]any{
		"initial_views":  req.InitialViews,
		"current_views":  req.CurrentViews,
		"previous_views": req.PreviousViews,
		"status":         req.Status,
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
