package repository

import (
	"context"

	"creatorpay-engine/pkg/db/option"

	"gorm.io/gorm"
)

// Repository is a thin typed wrapper over gorm for single-table access.
// Query structs match on their non-zero fields.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	Count(ctx context.Context, query *T) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	db := option.Apply(s.db.WithContext(ctx).Where(query), opts...)
	if err := db.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FindOne returns nil without error when nothing matches.
func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var out []*T
	db := option.Apply(s.db.WithContext(ctx).Where(query), opts...)
	if err := db.Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (s *store[T]) Create(ctx context.Context, resource *T) error {
	return s.db.WithContext(ctx).Create(resource).Error
}

func (s *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m, ok := resource.(*map[string]any); ok {
		resource = *m
	}
	return s.db.WithContext(ctx).Model(new(T)).Where("id = ?", resourceID).Updates(resource).Error
}

func (s *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(new(T)).Where(query).Count(&count).Error
	return count, err
}
