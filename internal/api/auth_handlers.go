package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"brillance/internal/api/middleware"
	"brillance/internal/model"
	"brillance/internal/pkg/geoip"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type sendCodeRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// handleSendCode 下发登录/注册验证码。
// 先做来源 IP 限流，再交给验证码服务做标识级别的发送间隔检查。
func (s *Server) handleSendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	identifier, channel, hasIdentifier := pickIdentifier(req.Email, req.Phone)
	if !hasIdentifier {
		fail(c, http.StatusBadRequest, "请提供邮箱或手机号")
		return
	}

	clientIP := geoip.ClientIP(c.Request)
	allowed, _, err := s.limiter.Allow(c.Request.Context(), clientIP)
	if err != nil {
		// 限流器故障不阻断业务，验证码服务自身还有按标识的间隔限制
		s.logger.Warn("send-code limiter unavailable", slog.Any("error", err))
	} else if !allowed {
		fail(c, http.StatusTooManyRequests, "发送过于频繁，请稍后再试")
		return
	}

	if err := s.codes.RequestCode(c.Request.Context(), identifier, channel, "login"); err != nil {
		failCodeError(c, err)
		return
	}
	okMsg(c, "验证码已发送")
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// handleVerifyCode 校验验证码但不消费，供前端在提交注册前预检。
func (s *Server) handleVerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	identifier, _, hasIdentifier := pickIdentifier(req.Email, req.Phone)
	if !hasIdentifier {
		fail(c, http.StatusBadRequest, "请提供邮箱或手机号")
		return
	}

	if _, err := s.codes.VerifyCode(c.Request.Context(), identifier, req.Code); err != nil {
		failCodeError(c, err)
		return
	}
	ok(c, gin.H{"valid": true})
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleCheckEmail(c *gin.Context) {
	var req checkEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		fail(c, http.StatusBadRequest, "请提供有效的邮箱地址")
		return
	}

	user, err := s.users.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	ok(c, gin.H{"exists": user != nil, "isBanned": user != nil && user.IsBanned})
}

type checkPhoneRequest struct {
	Phone string `json:"phone"`
}

func (s *Server) handleCheckPhone(c *gin.Context) {
	var req checkPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" {
		fail(c, http.StatusBadRequest, "请提供有效的手机号")
		return
	}

	user, err := s.users.FindByPhone(c.Request.Context(), req.Phone)
	if err != nil {
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	ok(c, gin.H{"exists": user != nil, "isBanned": user != nil && user.IsBanned})
}

type registerRequest struct {
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Password         string `json:"password"`
	RealName         string `json:"realName"`
	University       string `json:"university"`
	VerificationCode string `json:"verificationCode"`
}

// handleRegister 注册新用户。
//
// 验证码在此处被消费：校验通过后立即标记已使用，
// 之后的唯一键冲突等失败不会退还验证码。
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	identifier, _, hasIdentifier := pickIdentifier(req.Email, req.Phone)
	if !hasIdentifier {
		fail(c, http.StatusBadRequest, "请提供邮箱或手机号")
		return
	}
	if req.Password != "" && len(req.Password) < 8 {
		fail(c, http.StatusBadRequest, "密码长度至少为 8 位")
		return
	}
	if req.VerificationCode == "" {
		fail(c, http.StatusBadRequest, "请输入验证码")
		return
	}

	ctx := c.Request.Context()
	rec, err := s.codes.VerifyCode(ctx, identifier, req.VerificationCode)
	if err != nil {
		failCodeError(c, err)
		return
	}
	if err := s.codes.Consume(ctx, rec.ID); err != nil {
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}

	if req.Email != "" {
		existing, err := s.users.FindByEmail(ctx, req.Email)
		if err != nil {
			fail(c, http.StatusInternalServerError, "服务器内部错误")
			return
		}
		if existing != nil {
			fail(c, http.StatusBadRequest, "该邮箱已被注册")
			return
		}
	}
	if req.Phone != "" {
		existing, err := s.users.FindByPhone(ctx, req.Phone)
		if err != nil {
			fail(c, http.StatusInternalServerError, "服务器内部错误")
			return
		}
		if existing != nil {
			fail(c, http.StatusBadRequest, "该手机号已被注册")
			return
		}
	}

	user := &model.User{Role: model.RoleUser}
	if req.Email != "" {
		user.Email = &req.Email
	}
	if req.Phone != "" {
		user.Phone = &req.Phone
	}
	if req.University != "" {
		user.University = &req.University
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			fail(c, http.StatusInternalServerError, "服务器内部错误")
			return
		}
		hashStr := string(hash)
		user.Password = &hashStr
	}
	realName := defaultRealName(req.RealName, req.Email, req.Phone)
	if realName != "" {
		user.RealName = &realName
	}
	clientIP := geoip.ClientIP(c.Request)
	if clientIP != "" {
		user.LastLoginIP = &clientIP
	}

	if err := s.users.Create(ctx, user); err != nil {
		s.logger.Error("create user failed", slog.String("identifier", identifier), slog.Any("error", err))
		fail(c, http.StatusInternalServerError, "注册失败，请稍后重试")
		return
	}

	tokenStr, err := s.issuer.Issue(user.ID, user.Identifier(), user.Role)
	if err != nil {
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}

	s.enrichLoginLocation(user.ID, clientIP)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "注册成功",
		"data":    gin.H{"user": newUserResponse(user), "token": tokenStr},
	})
}

type loginRequest struct {
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Password         string `json:"password"`
	VerificationCode string `json:"verificationCode"`
	LoginMethod      string `json:"loginMethod"` // password / verification
}

// handleLogin 密码登录或验证码登录。
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	identifier, _, hasIdentifier := pickIdentifier(req.Email, req.Phone)
	if !hasIdentifier {
		fail(c, http.StatusBadRequest, "请输入邮箱或手机号")
		return
	}

	ctx := c.Request.Context()
	var user *model.User
	var err error
	if req.Email != "" {
		user, err = s.users.FindByEmail(ctx, req.Email)
	} else {
		user, err = s.users.FindByPhone(ctx, req.Phone)
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}
	if user == nil {
		if req.Email != "" {
			fail(c, http.StatusBadRequest, "该邮箱未注册")
		} else {
			fail(c, http.StatusBadRequest, "该手机号未注册")
		}
		return
	}
	if user.IsBanned {
		fail(c, http.StatusForbidden, "该账号已被封禁")
		return
	}

	switch req.LoginMethod {
	case "password":
		if req.Password == "" {
			fail(c, http.StatusBadRequest, "请输入密码")
			return
		}
		if user.Password == nil {
			fail(c, http.StatusBadRequest, "该账号未设置密码，请使用验证码登录")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(req.Password)) != nil {
			fail(c, http.StatusBadRequest, "密码错误")
			return
		}
	case "verification":
		if req.VerificationCode == "" {
			fail(c, http.StatusBadRequest, "请输入验证码")
			return
		}
		rec, err := s.codes.VerifyCode(ctx, identifier, req.VerificationCode)
		if err != nil {
			failCodeError(c, err)
			return
		}
		if err := s.codes.Consume(ctx, rec.ID); err != nil {
			fail(c, http.StatusInternalServerError, "服务器内部错误")
			return
		}
	default:
		fail(c, http.StatusBadRequest, "无效的登录方式")
		return
	}

	tokenStr, err := s.issuer.Issue(user.ID, user.Identifier(), user.Role)
	if err != nil {
		fail(c, http.StatusInternalServerError, "服务器内部错误")
		return
	}

	s.enrichLoginLocation(user.ID, geoip.ClientIP(c.Request))

	ok(c, gin.H{"user": newUserResponse(user), "token": tokenStr})
}

// handleMe 返回当前登录用户的信息。封禁校验已由访问网关完成。
func (s *Server) handleMe(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		fail(c, http.StatusUnauthorized, "未提供认证令牌")
		return
	}
	ok(c, newUserResponse(user))
}

// enrichLoginLocation 异步补全最近登录 IP 与城市。
// 纯旁路操作，查询或写库失败只记日志，绝不影响登录结果。
func (s *Server) enrichLoginLocation(userID, ip string) {
	if ip == "" || !s.cfg.App.GeoIPEnabled {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.App.ExternalWait)
		defer cancel()

		city, err := s.geo.CityByIP(ctx, ip)
		if err != nil {
			s.logger.Warn("ip city lookup failed", slog.String("ip", ip), slog.Any("error", err))
		}
		if err := s.users.UpdateLastLogin(ctx, userID, ip, city); err != nil {
			s.logger.Warn("update last login failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}()
}

// pickIdentifier 从邮箱/手机号中选出登录标识（邮箱优先）及其投递通道。
func pickIdentifier(email, phone string) (string, model.Channel, bool) {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if email != "" {
		return email, model.ChannelEmail, true
	}
	if phone != "" {
		return phone, model.ChannelSMS, true
	}
	return "", "", false
}

// defaultRealName 未提供显示名时按注册方式生成默认值。
func defaultRealName(realName, email, phone string) string {
	if realName != "" {
		return realName
	}
	if phone != "" && len(phone) >= 4 {
		return "游客_" + phone[len(phone)-4:]
	}
	if email != "" {
		if at := strings.Index(email, "@"); at > 0 {
			return "游客_" + email[:at]
		}
	}
	return ""
}
