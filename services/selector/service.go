package selector

import (
	"context"
	"fmt"

	"creatorpay-engine/services/campaign"
	"creatorpay-engine/services/submission"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultLimit = 50

type Selector interface {
	Select(ctx context.Context, p Params) ([]Item, error)
}

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

// Select returns up to p.Limit eligible clips in tracking priority order.
// A clip is eligible while its submission is APPROVED or PENDING and its
// campaign is ACTIVE, not a test campaign and not deleted. It never writes.
func (s *Service) Select(ctx context.Context, p Params) ([]Item, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := s.db.WithContext(ctx).
		Table("submissions AS s").
		Select(`c.id AS clip_id, c.url AS url, c.platform AS platform, c.earnings AS clip_earnings,
			c.last_tracked_at AS last_tracked_at, s.id AS submission_id, s.status AS submission_status,
			s.initial_views AS initial_views, s.user_id AS user_id, cp.id AS campaign_id,
			cp.budget AS campaign_budget, cp.spent AS campaign_spent, cp.payout_rate AS payout_rate`).
		Joins("JOIN clips AS c ON c.id = s.clip_id").
		Joins("JOIN campaigns AS cp ON cp.id = s.campaign_id").
		Where("s.status IN ?", submission.TrackableStatuses()).
		Where("cp.status = ?", string(campaign.StatusActive)).
		Where("cp.is_test = ?", false).
		Where("cp.deleted_at IS NULL")

	if len(p.Exclude) > 0 {
		q = q.Where("c.id NOT IN ?", p.Exclude)
	}

	var items []Item
	if err := q.
		Order("CASE WHEN c.last_tracked_at IS NULL THEN 0 ELSE 1 END ASC").
		Order("c.last_tracked_at ASC").
		Order("c.id ASC").
		Limit(limit).
		Scan(&items).Error; err != nil {
		zap.L().Error("[Selector] failed to select clips", zap.Error(err))
		return nil, fmt.Errorf("select clips: %w", err)
	}

	// Database collations and NULL ordering differ; the in-process order is
	// the one callers rely on.
	Prioritize(items)
	return items, nil
}
