package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role 用户角色。角色比较只允许通过该类型进行，禁止散落的字符串比较。
type Role string

const (
	RoleUser  Role = "user"  // 普通用户
	RoleAdmin Role = "admin" // 管理员
)

// Valid 判断角色是否为已知取值。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User 表示系统用户。
//
// 邮箱与手机号均可为空，但至少一个必须存在才能登录。
// admin 角色的用户不允许被封禁或注销（硬性校验，见 api 层）。
type User struct {
	ID            string     `gorm:"type:varchar(36);primaryKey"`   // 用户 ID (UUID)
	Email         *string    `gorm:"type:varchar(191);uniqueIndex"` // 邮箱（唯一，可空）
	Phone         *string    `gorm:"type:varchar(32);uniqueIndex"`  // 手机号（唯一，可空）
	Password      *string    // bcrypt 哈希（可空，为空表示仅支持验证码登录）
	RealName      *string    `gorm:"type:varchar(64)"`              // 显示名
	University    *string    `gorm:"type:varchar(128)"`             // 绑定院校
	Role          Role       `gorm:"type:varchar(16);default:user"` // 角色: user / admin
	IsBanned      bool       `gorm:"default:false"`                 // 封禁标记
	LastLoginIP   *string    `gorm:"type:varchar(64)"`              // 最近登录 IP（尽力而为）
	LastLoginCity *string    `gorm:"type:varchar(64)"`              // 最近登录城市（尽力而为）
	CreatedAt     time.Time  // 创建时间
	UpdatedAt     time.Time  // 更新时间
}

// BeforeCreate 在插入前生成 UUID 主键。
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Identifier 返回用户的登录标识（邮箱优先，其次手机号）。
func (u *User) Identifier() string {
	if u.Email != nil && *u.Email != "" {
		return *u.Email
	}
	if u.Phone != nil && *u.Phone != "" {
		return *u.Phone
	}
	return ""
}
