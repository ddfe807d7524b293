package otp

import (
	"context"
	"errors"

	"brillance/internal/model"

	"gorm.io/gorm"
)

// GormStore 是 CodeStore 的 MySQL 实现。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建基于 GORM 的验证码存储。
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) LatestByIdentifier(ctx context.Context, identifier string) (*model.VerificationCode, error) {
	var rec model.VerificationCode
	err := s.db.WithContext(ctx).
		Where("identifier = ?", identifier).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) LatestUnused(ctx context.Context, identifier, code string) (*model.VerificationCode, error) {
	var rec model.VerificationCode
	err := s.db.WithContext(ctx).
		Where("identifier = ? AND code = ? AND is_used = ?", identifier, code, false).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) Create(ctx context.Context, rec *model.VerificationCode) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&model.VerificationCode{}, id).Error
}

func (s *GormStore) MarkUsed(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).
		Model(&model.VerificationCode{}).
		Where("id = ?", id).
		Update("is_used", true).Error
}
