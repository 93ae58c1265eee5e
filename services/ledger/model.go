package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"creatorpay-engine/pkg/errutil"
	"creatorpay-engine/services/campaign"
	"creatorpay-engine/services/submission"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Precision is the number of decimal places money is stored with.
const Precision int32 = 6

// Balance is a creator's withdrawable balance. It is credited here and
// debited by the payout workflow.
type Balance struct {
	UserID        string          `gorm:"column:user_id;primaryKey;type:varchar(32)"`
	TotalEarnings decimal.Decimal `gorm:"column:total_earnings;type:numeric(20,6);not null;default:0"`
	TotalViews    int64           `gorm:"column:total_views;not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Balance) TableName() string {
	return "user_balances"
}

// EarningEntry records one applied delta. ReferenceID is the tracking sample
// that produced it, so a sample can be credited at most once. Entries of a
// campaign form a hash chain ordered by Sequence.
type EarningEntry struct {
	ID           string          `gorm:"column:id;primaryKey;type:varchar(32)"`
	CampaignID   string          `gorm:"column:campaign_id;type:varchar(32);not null;uniqueIndex:idx_earning_entries_campaign_seq,priority:1"`
	Sequence     int64           `gorm:"column:sequence;not null;uniqueIndex:idx_earning_entries_campaign_seq,priority:2"`
	ClipID       string          `gorm:"column:clip_id;type:varchar(32);not null;index"`
	UserID       string          `gorm:"column:user_id;type:varchar(32);not null;index"`
	ReferenceID  string          `gorm:"column:reference_id;type:varchar(32);not null;uniqueIndex"`
	Amount       decimal.Decimal `gorm:"column:amount;type:numeric(20,6);not null"`
	ViewsGained  int64           `gorm:"column:views_gained;not null;default:0"`
	SpentAfter   decimal.Decimal `gorm:"column:spent_after;type:numeric(20,6);not null"`
	PreviousHash string          `gorm:"column:previous_hash;type:char(64)"`
	Hash         string          `gorm:"column:hash;type:char(64);not null"`
	Metadata     datatypes.JSON  `gorm:"column:metadata"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}

func (EarningEntry) TableName() string {
	return "earning_entries"
}

func (e *EarningEntry) HashFields() map[string]string {
	return map[string]string{
		"id":            e.ID,
		"campaign_id":   e.CampaignID,
		"sequence":      fmt.Sprintf("%d", e.Sequence),
		"clip_id":       e.ClipID,
		"user_id":       e.UserID,
		"reference_id":  e.ReferenceID,
		"amount":        e.Amount.StringFixed(Precision),
		"views_gained":  fmt.Sprintf("%d", e.ViewsGained),
		"spent_after":   e.SpentAfter.StringFixed(Precision),
		"created_at":    e.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": e.PreviousHash,
	}
}

func (e *EarningEntry) GenerateHash() string {
	fields := e.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// Snapshot is the locked state a credit is planned against.
type Snapshot struct {
	Campaign     campaign.Campaign
	ClipEarnings decimal.Decimal
	Submission   submission.Submission
	Balance      Balance
}

// PlanFunc decides the amount to credit from locked, current rows.
type PlanFunc func(s Snapshot) (decimal.Decimal, error)

type CreditRequest struct {
	ReferenceID string
	CampaignID  string
	ClipID      string
	UserID      string
	ViewsGained int64
	Metadata    datatypes.JSON
}

func (r CreditRequest) validate() error {
	var details []errutil.Detail
	for field, value := range map[string]string{
		"reference_id": r.ReferenceID,
		"campaign_id":  r.CampaignID,
		"clip_id":      r.ClipID,
		"user_id":      r.UserID,
	} {
		if value == "" {
			details = append(details, errutil.Detail{Field: field, Message: "required"})
		}
	}
	if len(details) == 0 {
		return nil
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Field < details[j].Field })
	return errutil.BadRequest("credit request is missing an identifier", nil, errutil.WithDetails(details...))
}

type CreditResult struct {
	Amount        decimal.Decimal
	Entry         *EarningEntry
	ClipEarnings  decimal.Decimal
	CampaignSpent decimal.Decimal
}

// Applied reports whether any money moved.
func (r *CreditResult) Applied() bool {
	return r != nil && r.Entry != nil
}

// Audit compares the three views of a campaign's spend.
type Audit struct {
	CampaignID   string          `json:"campaign_id"`
	Spent        decimal.Decimal `json:"spent"`
	ClipEarnings decimal.Decimal `json:"clip_earnings"`
	EntryTotal   decimal.Decimal `json:"entry_total"`
	Entries      int             `json:"entries"`
	ChainValid   bool            `json:"chain_valid"`
}

func (a *Audit) Balanced() bool {
	return a.Spent.Equal(a.ClipEarnings) && a.Spent.Equal(a.EntryTotal) && a.ChainValid
}
