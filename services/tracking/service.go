package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creatorpay-engine/pkg/db/option"
	"creatorpay-engine/pkg/errutil"
	"creatorpay-engine/services/submission"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrClipNotFound = errutil.NotFound("clip not found", nil)

const defaultHistoryLimit = 100

// Recorder is the write side used by the tracking loop.
type Recorder interface {
	Record(ctx context.Context, p RecordParams) (*RecordResult, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time
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
	}
}

// Record appends a sample and refreshes the clip's counter cache in one
// transaction. The stored counts are exactly what the source returned, even
// when they are lower than the previous sample.
func (s *Service) Record(ctx context.Context, p RecordParams) (*RecordResult, error) {
	observedAt := p.ObservedAt.UTC()
	if p.ObservedAt.IsZero() {
		observedAt = s.now().UTC()
	}

	var result RecordResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clip submission.Clip
		if err := option.LockingUpdate(tx).Select("id").First(&clip, "id = ?", p.ClipID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrClipNotFound
			}
			return err
		}

		previous, err := latest(tx, p.ClipID)
		if err != nil {
			return err
		}

		sample := Sample{
			ID:           s.node.Generate().String(),
			ClipID:       p.ClipID,
			ObservedAt:   observedAt,
			ObservedDate: datatypes.Date(observedAt.Truncate(24 * time.Hour)),
			Views:        p.Views,
			Likes:        p.Likes,
			Shares:       p.Shares,
		}
		if err := tx.Create(&sample).Error; err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}

		if err := tx.Model(&submission.Clip{}).Where("id = ?", p.ClipID).Updates(map[string]any{
			"views":           p.Views,
			"likes":           p.Likes,
			"shares":          p.Shares,
			"last_tracked_at": observedAt,
		}).Error; err != nil {
			return fmt.Errorf("update clip counters: %w", err)
		}

		result = RecordResult{Sample: sample, Previous: previous}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrClipNotFound) {
			zap.L().Error("[Tracking] failed to record sample", zap.String("clip_id", p.ClipID), zap.Error(err))
		}
		return nil, err
	}

	if result.Previous != nil && result.Sample.Views < result.Previous.Views {
		zap.L().Warn("[Tracking] view count went down",
			zap.String("clip_id", p.ClipID),
			zap.Int64("previous_views", result.Previous.Views),
			zap.Int64("views", result.Sample.Views),
		)
	}

	return &result, nil
}

// Latest returns the newest sample for the clip, or nil when it was never
// measured.
func (s *Service) Latest(ctx context.Context, clipID string) (*Sample, error) {
	return latest(s.db.WithContext(ctx), clipID)
}

// History returns up to limit of the clip's most recent samples, oldest first.
func (s *Service) History(ctx context.Context, clipID string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var samples []Sample
	if err := s.db.WithContext(ctx).
		Where("clip_id = ?", clipID).
		Order("observed_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&samples).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

func latest(db *gorm.DB, clipID string) (*Sample, error) {
	var samples []Sample
	if err := db.Where("clip_id = ?", clipID).
		Order("observed_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&samples).Error; err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[0], nil
}
