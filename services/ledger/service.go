package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creatorpay-engine/pkg/db/option"
	"creatorpay-engine/pkg/errutil"
	"creatorpay-engine/pkg/repository"
	"creatorpay-engine/services/campaign"
	"creatorpay-engine/services/submission"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrCampaignNotFound   = errutil.NotFound("campaign not found", nil)
	ErrCampaignInactive   = errutil.Conflict("campaign is not accruing earnings", nil)
	ErrClipNotFound       = errutil.NotFound("clip not found", nil)
	ErrSubmissionNotFound = errutil.NotFound("submission not found", nil)
	ErrBalanceNotFound    = errutil.NotFound("user balance not found", nil)
	ErrDuplicateReference = errutil.Conflict("reference already credited", nil)
	ErrBudgetExceeded     = errutil.UnprocessableEntity("credit exceeds remaining campaign budget", nil)
	ErrInvalidCredit      = errutil.BadRequest("credit request is missing an identifier", nil)
)

// BalanceStore applies a credit to clip, user and campaign in one atomic step.
type BalanceStore interface {
	Credit(ctx context.Context, req CreditRequest, plan PlanFunc) (*CreditResult, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	entries repository.Repository[EarningEntry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		now:  time.Now,

		entries: repository.ProvideStore[EarningEntry](p.DB),
	}
}

var bySequenceDesc = option.WithSortBy(option.QuerySortBy{
	SortBy:  "sequence",
	OrderBy: "desc",
	Allow:   map[string]bool{"sequence": true},
})

var bySequenceAsc = option.WithSortBy(option.QuerySortBy{
	SortBy:  "sequence",
	OrderBy: "asc",
	Allow:   map[string]bool{"sequence": true},
})

// Credit locks the campaign, clip, submission and balance rows, asks plan for
// the amount against those locked values and, when it is positive, moves it into clip
// earnings, the user's balance and campaign spend, appending one chained
// EarningEntry. A zero amount commits nothing. Any error leaves every row
// untouched.
func (s *Service) Credit(ctx context.Context, req CreditRequest, plan PlanFunc) (*CreditResult, error) {
	logger := zap.L().With(
		zap.String("reference_id", req.ReferenceID),
		zap.String("campaign_id", req.CampaignID),
		zap.String("clip_id", req.ClipID),
		zap.String("user_id", req.UserID),
	)

	if err := req.validate(); err != nil {
		logger.Error("[Ledger] credit rejected", zap.Error(err))
		return nil, err
	}

	var result *CreditResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries := s.entries.WithTrx(tx)

		var credited int64
		if err := tx.Model(&EarningEntry{}).Where("reference_id = ?", req.ReferenceID).Count(&credited).Error; err != nil {
			return err
		}
		if credited > 0 {
			return ErrDuplicateReference
		}

		var cp campaign.Campaign
		if err := option.LockingUpdate(tx).First(&cp, "id = ?", req.CampaignID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCampaignNotFound
			}
			return err
		}
		if !cp.IsTrackable() {
			return ErrCampaignInactive
		}

		var clip submission.Clip
		if err := option.LockingUpdate(tx).First(&clip, "id = ?", req.ClipID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrClipNotFound
			}
			return err
		}

		var sub submission.Submission
		if err := option.LockingUpdate(tx).
			Where("clip_id = ? AND campaign_id = ? AND user_id = ?", clip.ID, cp.ID, req.UserID).
			First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			return err
		}

		var balance Balance
		if err := option.LockingUpdate(tx).First(&balance, "user_id = ?", req.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBalanceNotFound
			}
			return err
		}

		amount, err := plan(Snapshot{Campaign: cp, ClipEarnings: clip.Earnings, Submission: sub, Balance: balance})
		if err != nil {
			return err
		}
		amount = amount.Round(Precision)

		result = &CreditResult{
			Amount:        decimal.Zero,
			ClipEarnings:  clip.Earnings,
			CampaignSpent: cp.Spent,
		}
		if !amount.IsPositive() {
			return nil
		}
		if amount.GreaterThan(cp.Remaining()) {
			return ErrBudgetExceeded
		}

		spentAfter := cp.Spent.Add(amount)
		clipAfter := clip.Earnings.Add(amount)

		if err := tx.Model(&campaign.Campaign{}).Where("id = ?", cp.ID).
			Update("spent", spentAfter).Error; err != nil {
			return fmt.Errorf("update campaign spent: %w", err)
		}
		if err := tx.Model(&submission.Clip{}).Where("id = ?", clip.ID).
			Update("earnings", clipAfter).Error; err != nil {
			return fmt.Errorf("update clip earnings: %w", err)
		}
		if err := tx.Model(&Balance{}).Where("user_id = ?", balance.UserID).Updates(map[string]any{
			"total_earnings": balance.TotalEarnings.Add(amount),
			"total_views":    balance.TotalViews + max(req.ViewsGained, 0),
		}).Error; err != nil {
			return fmt.Errorf("update user balance: %w", err)
		}

		last, err := entries.FindOne(ctx, &EarningEntry{CampaignID: cp.ID}, bySequenceDesc, option.WithLockingUpdate())
		if err != nil {
			return err
		}

		entry := &EarningEntry{
			ID:          s.node.Generate().String(),
			CampaignID:  cp.ID,
			Sequence:    1,
			ClipID:      clip.ID,
			UserID:      balance.UserID,
			ReferenceID: req.ReferenceID,
			Amount:      amount,
			ViewsGained: max(req.ViewsGained, 0),
			SpentAfter:  spentAfter,
			Metadata:    req.Metadata,
			CreatedAt:   s.now().UTC().Truncate(time.Microsecond),
		}
		if last != nil {
			entry.Sequence = last.Sequence + 1
			entry.PreviousHash = last.Hash
		}
		entry.Hash = entry.GenerateHash()

		if err := entries.Create(ctx, entry); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReference
			}
			return fmt.Errorf("insert earning entry: %w", err)
		}

		result = &CreditResult{
			Amount:        amount,
			Entry:         entry,
			ClipEarnings:  clipAfter,
			CampaignSpent: spentAfter,
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateReference),
			errors.Is(err, ErrCampaignNotFound),
			errors.Is(err, ErrCampaignInactive),
			errors.Is(err, ErrClipNotFound),
			errors.Is(err, ErrSubmissionNotFound),
			errors.Is(err, ErrBalanceNotFound):
			logger.Warn("[Ledger] credit skipped", zap.Error(err))
		default:
			logger.Error("[Ledger] credit failed", zap.Error(err))
		}
		return nil, err
	}

	if result.Applied() {
		logger.Info("[Ledger] credit applied",
			zap.String("amount", result.Amount.String()),
			zap.String("campaign_spent", result.CampaignSpent.String()),
			zap.Int64("sequence", result.Entry.Sequence),
		)
	}
	return result, nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	var balance Balance
	if err := s.db.WithContext(ctx).First(&balance, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// VerifyChain recomputes every entry hash of the campaign and checks each
// links to its predecessor.
func (s *Service) VerifyChain(ctx context.Context, campaignID string) (bool, error) {
	if campaignID == "" {
		return false, ErrCampaignNotFound
	}

	entries, err := s.entries.Find(ctx, &EarningEntry{CampaignID: campaignID}, bySequenceAsc)
	if err != nil {
		zap.L().Error("[Ledger] failed to load entries", zap.String("campaign_id", campaignID), zap.Error(err))
		return false, err
	}

	return verify(entries), nil
}

func verify(entries []*EarningEntry) bool {
	var lastHash string
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			return false
		}
		lastHash = entry.Hash
	}
	return true
}

// Reconcile audits a campaign: spent must equal the sum of its clips'
// earnings and the sum of its earning entries, and the entry chain must
// verify. Soft-deleted campaigns are included.
func (s *Service) Reconcile(ctx context.Context, campaignID string) (*Audit, error) {
	var cp campaign.Campaign
	if err := s.db.WithContext(ctx).Unscoped().First(&cp, "id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}

	var clips []struct {
		Earnings decimal.Decimal `gorm:"column:earnings"`
	}
	if err := s.db.WithContext(ctx).
		Table("clips AS c").
		Select("c.earnings AS earnings").
		Joins("JOIN submissions AS s ON s.clip_id = c.id").
		Where("s.campaign_id = ?", campaignID).
		Scan(&clips).Error; err != nil {
		return nil, fmt.Errorf("sum clip earnings: %w", err)
	}

	entries, err := s.entries.Find(ctx, &EarningEntry{CampaignID: campaignID}, bySequenceAsc)
	if err != nil {
		return nil, fmt.Errorf("load earning entries: %w", err)
	}

	audit := &Audit{
		CampaignID:   campaignID,
		Spent:        cp.Spent,
		ClipEarnings: decimal.Zero,
		EntryTotal:   decimal.Zero,
		Entries:      len(entries),
		ChainValid:   verify(entries),
	}
	for _, c := range clips {
		audit.ClipEarnings = audit.ClipEarnings.Add(c.Earnings)
	}
	for _, e := range entries {
		audit.EntryTotal = audit.EntryTotal.Add(e.Amount)
	}

	if !audit.Balanced() {
		zap.L().Error("[Ledger] campaign does not balance",
			zap.String("campaign_id", campaignID),
			zap.String("spent", audit.Spent.String()),
			zap.String("clip_earnings", audit.ClipEarnings.String()),
			zap.String("entry_total", audit.EntryTotal.String()),
			zap.Bool("chain_valid", audit.ChainValid),
		)
	}
	return audit, nil
}
