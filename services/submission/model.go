package submission

import (
	"time"

	"creatorpay-engine/pkg/measure"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusPaid     Status = "PAID"
)

// Accrues reports whether view growth on the submission earns money.
// PENDING clips are still measured so their history is ready on approval.
func (s Status) Accrues() bool {
	return s == StatusApproved
}

func (s Status) Trackable() bool {
	return s == StatusApproved || s == StatusPending
}

// TrackableStatuses lists the statuses the selector picks up.
func TrackableStatuses() []string {
	return []string{string(StatusApproved), string(StatusPending)}
}

type Submission struct {
	ID           string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	ClipID       string    `gorm:"column:clip_id;type:varchar(32);not null;uniqueIndex"`
	UserID       string    `gorm:"column:user_id;type:varchar(32);not null;index"`
	CampaignID   string    `gorm:"column:campaign_id;type:varchar(32);not null;index"`
	Status       Status    `gorm:"column:status;type:varchar(20);not null;default:'PENDING';index"`
	InitialViews int64     `gorm:"column:initial_views;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Submission) TableName() string {
	return "submissions"
}

// Clip holds the latest observed counters as a cache of its newest tracking
// sample, plus the lifetime earnings credited to it.
type Clip struct {
	ID            string           `gorm:"column:id;primaryKey;type:varchar(32)"`
	URL           string           `gorm:"column:url;type:text;not null"`
	Platform      measure.Platform `gorm:"column:platform;type:varchar(32);not null"`
	Views         int64            `gorm:"column:views;not null;default:0"`
	Likes         int64            `gorm:"column:likes;not null;default:0"`
	Shares        int64            `gorm:"column:shares;not null;default:0"`
	Earnings      decimal.Decimal  `gorm:"column:earnings;type:numeric(20,6);not null;default:0"`
	LastTrackedAt *time.Time       `gorm:"column:last_tracked_at;index"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Clip) TableName() string {
	return "clips"
}
