package api

import (
	"errors"
	"fmt"
	"net/http"

	"brillance/internal/model"
	"brillance/internal/otp"

	"github.com/gin-gonic/gin"
)

// 所有接口统一使用 {success, message?, data?} 信封。

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func okMsg(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// failCodeError 将验证码错误翻译为对用户可见的响应。
// 未识别的错误按内部错误处理，细节只进日志。
func failCodeError(c *gin.Context, err error) {
	var rateLimited *otp.RateLimitedError
	switch {
	case errors.As(err, &rateLimited):
		fail(c, http.StatusTooManyRequests,
			fmt.Sprintf("发送过于频繁，请 %d 秒后重试", rateLimited.WaitSeconds()))
	case errors.Is(err, otp.ErrInvalidIdentifier):
		fail(c, http.StatusBadRequest, "邮箱或手机号格式不正确")
	case errors.Is(err, otp.ErrInvalidCode):
		fail(c, http.StatusBadRequest, "验证码格式不正确")
	case errors.Is(err, otp.ErrNoCodeRequested):
		fail(c, http.StatusBadRequest, "请先获取验证码")
	case errors.Is(err, otp.ErrCodeMismatch):
		fail(c, http.StatusBadRequest, "验证码错误")
	case errors.Is(err, otp.ErrCodeExpired):
		fail(c, http.StatusBadRequest, "验证码已失效，请重新获取")
	case errors.Is(err, otp.ErrDeliveryFailed):
		fail(c, http.StatusInternalServerError, "验证码发送失败，请稍后重试")
	default:
		fail(c, http.StatusInternalServerError, "服务器内部错误")
	}
}

// userResponse 对外暴露的用户信息，不包含密码哈希。
type userResponse struct {
	ID         string  `json:"id"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	RealName   *string `json:"realName"`
	University *string `json:"university"`
	Role       string  `json:"role"`
	IsBanned   bool    `json:"isBanned"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		Phone:      u.Phone,
		RealName:   u.RealName,
		University: u.University,
		Role:       string(u.Role),
		IsBanned:   u.IsBanned,
	}
}
