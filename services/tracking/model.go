package tracking

import (
	"time"

	"gorm.io/datatypes"
)

// Sample is one immutable observation of a clip's counters. Samples are only
// ever inserted.
type Sample struct {
	ID           string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	ClipID       string         `gorm:"column:clip_id;type:varchar(32);not null;index:idx_tracking_samples_clip_observed,priority:1"`
	ObservedAt   time.Time      `gorm:"column:observed_at;not null;index:idx_tracking_samples_clip_observed,priority:2"`
	ObservedDate datatypes.Date `gorm:"column:observed_date;not null"`
	Views        int64          `gorm:"column:views;not null"`
	Likes        int64          `gorm:"column:likes;not null"`
	Shares       int64          `gorm:"column:shares;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Sample) TableName() string {
	return "tracking_samples"
}

type RecordParams struct {
	ClipID     string
	Views      int64
	Likes      int64
	Shares     int64
	ObservedAt time.Time
}

// RecordResult carries the inserted sample and the one that was latest
// before it, nil on a clip's first measurement.
type RecordResult struct {
	Sample   Sample
	Previous *Sample
}

// PreviousViews returns the prior sample's views, or fallback when this is
// the clip's first sample.
func (r *RecordResult) PreviousViews(fallback int64) int64 {
	if r.Previous == nil {
		return fallback
	}
	return r.Previous.Views
}
