package model

import "time"

// Channel 验证码投递通道。
type Channel string

const (
	ChannelEmail Channel = "email" // 邮件通道
	ChannelSMS   Channel = "sms"   // 短信通道
)

// VerificationCode 表示一条一次性验证码记录。
//
// Identifier 为邮箱或手机号（由 Channel 决定其含义）。
// 记录在发送时创建，校验时只读；是否标记已使用由注册/登录流程负责，
// 这样注册的后续调用失败时不会提前烧掉验证码。
type VerificationCode struct {
	ID         uint      `gorm:"primaryKey"`                        // 记录 ID
	Identifier string    `gorm:"type:varchar(191);index;not null"`  // 邮箱或手机号
	Channel    Channel   `gorm:"type:varchar(16);not null"`         // 通道: email / sms
	Code       string    `gorm:"type:varchar(8);not null"`          // 6 位数字验证码
	Type       string    `gorm:"type:varchar(16);default:login"`    // 用途: login / register
	ExpiresAt  time.Time `gorm:"not null"`                          // 过期时间 = 创建时间 + 有效期
	IsUsed     bool      `gorm:"default:false"`                     // 是否已被消费
	CreatedAt  time.Time // 创建时间
}
