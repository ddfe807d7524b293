package otp

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidIdentifier 标识格式不合法（邮箱/手机号与通道不匹配）。
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidCode 验证码格式不合法（不是 6 位数字）。
	ErrInvalidCode = errors.New("invalid code format")
	// ErrNoCodeRequested 该标识从未请求过验证码。
	ErrNoCodeRequested = errors.New("no code requested")
	// ErrCodeMismatch 验证码与最近一次下发的不一致。
	ErrCodeMismatch = errors.New("code mismatch")
	// ErrCodeExpired 验证码已过期。
	ErrCodeExpired = errors.New("code expired")
	// ErrDeliveryFailed 通道投递失败（对应的验证码记录已被清理）。
	ErrDeliveryFailed = errors.New("delivery failed")
)

// RateLimitedError 表示发送过于频繁，Wait 为剩余等待时间。
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.WaitSeconds())
}

// WaitSeconds 返回向上取整的剩余等待秒数。
func (e *RateLimitedError) WaitSeconds() int {
	s := int((e.Wait + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
