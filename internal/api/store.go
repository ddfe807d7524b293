package api

import (
	"context"
	"errors"

	"brillance/internal/model"

	"gorm.io/gorm"
)

// UserStore 用户表的读写操作。查不到记录时返回 (nil, nil)。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByPhone(ctx context.Context, phone string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	SetBanned(ctx context.Context, id string, banned bool) error
	Delete(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id, ip, city string) error
}

type dbUserStore struct {
	db *gorm.DB
}

func (s dbUserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s dbUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findOne(ctx, "email = ?", email)
}

func (s dbUserStore) FindByPhone(ctx context.Context, phone string) (*model.User, error) {
	return s.findOne(ctx, "phone = ?", phone)
}

func (s dbUserStore) findOne(ctx context.Context, query string, arg string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s dbUserStore) Create(ctx context.Context, user *model.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

func (s dbUserStore) SetBanned(ctx context.Context, id string, banned bool) error {
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("is_banned", banned).Error
}

func (s dbUserStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{}).Error
}

func (s dbUserStore) UpdateLastLogin(ctx context.Context, id, ip, city string) error {
	updates := map[string]any{"last_login_ip": ip}
	if city != "" {
		updates["last_login_city"] = city
	}
	return s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Updates(updates).Error
}
