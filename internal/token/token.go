package token

import (
	"errors"
	"time"

	"brillance/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid 表示令牌无效。过期、格式错误、签名不匹配统一折叠为该错误，
// 避免向调用方泄露具体失败原因。
var ErrInvalid = errors.New("invalid token")

// Claims 是身份令牌的声明结构。
// 除本包外不允许手工构造，所有解码结果只能来自 Verify。
type Claims struct {
	jwt.RegisteredClaims
	Identifier string     `json:"identifier"` // 邮箱或手机号
	Role       model.Role `json:"role"`       // 签发时的角色（鉴权时仍需复核数据库）
}

// Issuer 签发并校验无状态身份令牌。
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer 创建令牌签发器。secret 为空属于配置错误，应在启动时拦截。
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue 为用户签发身份令牌。
func (i *Issuer) Issue(userID string, identifier string, role model.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Identifier: identifier,
		Role:       role,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

// Verify 校验令牌并返回声明。任何篡改、过期或格式问题均返回 ErrInvalid。
func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return i.secret, nil
	})
	if err != nil || !t.Valid {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
