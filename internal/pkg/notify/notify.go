package notify

import "context"

// Sender 定义验证码投递通道。
//
// 参数:
//
//	ctx: 上下文（携带调用超时）
//	destination: 收件地址（邮箱或手机号）
//	code: 6 位验证码
type Sender interface {
	Send(ctx context.Context, destination, code string) error
}
