package middleware

import (
	"context"
	"net/http"
	"strings"

	"brillance/internal/model"
	"brillance/internal/pkg/metrics"
	"brillance/internal/token"

	"github.com/gin-gonic/gin"
)

const ctxUserKey = "authUser"

// UserStore 按 ID 查询用户的实时状态。记录不存在时返回 (nil, nil)。
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Auth 访问网关：校验 Bearer 令牌后再查一次数据库。
//
// 令牌里携带的角色只代表签发时刻，封禁和改角色必须即时生效，
// 所以每个受保护请求都以数据库里的实时状态为准。
func Auth(verifier *token.Issuer, store UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			deny(c, http.StatusUnauthorized, "未提供认证令牌", "missing_token")
			return
		}

		claims, err := verifier.Verify(raw)
		if err != nil {
			deny(c, http.StatusUnauthorized, "无效的认证令牌", "invalid_token")
			return
		}

		user, err := store.FindByID(c.Request.Context(), claims.Subject)
		if err != nil {
			deny(c, http.StatusInternalServerError, "服务器内部错误", "store_error")
			return
		}
		if user == nil {
			deny(c, http.StatusUnauthorized, "用户不存在", "unknown_user")
			return
		}
		if user.IsBanned {
			deny(c, http.StatusForbidden, "账号已被封禁", "banned")
			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// RequireRole 要求当前用户实时角色为 role。必须挂在 Auth 之后。
func RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			deny(c, http.StatusUnauthorized, "未提供认证令牌", "missing_token")
			return
		}
		if user.Role != role {
			deny(c, http.StatusForbidden, "权限不足", "insufficient_role")
			return
		}
		c.Next()
	}
}

// CurrentUser 返回 Auth 写入的当前用户，未认证时为 nil。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	user, ok := v.(*model.User)
	if !ok {
		return nil
	}
	return user
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

func deny(c *gin.Context, status int, message, reason string) {
	metrics.AuthDeniedTotal.WithLabelValues(reason).Inc()
	c.JSON(status, gin.H{"success": false, "message": message})
	c.Abort()
}
