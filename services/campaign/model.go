package campaign

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Campaign is a funded pool that pays PayoutRate per 1000 incremental views.
// Spent only ever grows, by the tracker's reconciliation step.
type Campaign struct {
	ID         string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	Name       string          `gorm:"column:name;type:varchar(255);not null"`
	Budget     decimal.Decimal `gorm:"column:budget;type:numeric(20,6);not null;default:0"`
	Spent      decimal.Decimal `gorm:"column:spent;type:numeric(20,6);not null;default:0"`
	PayoutRate decimal.Decimal `gorm:"column:payout_rate;type:numeric(20,6);not null;default:0"`
	Status     Status          `gorm:"column:status;type:varchar(20);not null;default:'DRAFT';index"`
	IsTest     bool            `gorm:"column:is_test;not null;default:false"`
	Hidden     bool            `gorm:"column:hidden;not null;default:false"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt  gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// IsTrackable reports whether the campaign still accrues earnings.
func (c *Campaign) IsTrackable() bool {
	return c.Status == StatusActive && !c.IsTest && !c.DeletedAt.Valid
}

// Remaining is max(0, budget - spent).
func (c *Campaign) Remaining() decimal.Decimal {
	r := c.Budget.Sub(c.Spent)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
