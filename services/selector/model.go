package selector

import (
	"time"

	"creatorpay-engine/pkg/measure"
	"creatorpay-engine/services/submission"

	"github.com/shopspring/decimal"
)

// Item is everything one tracking cycle needs about a clip. Money fields are
// a snapshot at selection time; reconciliation re-reads them under lock.
type Item struct {
	ClipID           string            `gorm:"column:clip_id"`
	URL              string            `gorm:"column:url"`
	Platform         measure.Platform  `gorm:"column:platform"`
	ClipEarnings     decimal.Decimal   `gorm:"column:clip_earnings"`
	LastTrackedAt    *time.Time        `gorm:"column:last_tracked_at"`
	SubmissionID     string            `gorm:"column:submission_id"`
	SubmissionStatus submission.Status `gorm:"column:submission_status"`
	InitialViews     int64             `gorm:"column:initial_views"`
	UserID           string            `gorm:"column:user_id"`
	CampaignID       string            `gorm:"column:campaign_id"`
	CampaignBudget   decimal.Decimal   `gorm:"column:campaign_budget"`
	CampaignSpent    decimal.Decimal   `gorm:"column:campaign_spent"`
	PayoutRate       decimal.Decimal   `gorm:"column:payout_rate"`
}

type Params struct {
	Limit   int
	Exclude []string
}
