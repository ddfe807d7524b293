package api

import (
	"log/slog"
	"net/http"
	"time"

	"brillance/internal/api/middleware"
	"brillance/internal/weboffice"

	"github.com/gin-gonic/gin"
)

type signURLRequest struct {
	FilePath  string `json:"filePath"`
	ExpiresIn int    `json:"expiresIn"` // 秒，<=0 时用默认值
}

// handleSignURL 为私有文件签发临时访问 URL。
// 鉴权由访问网关完成，这里只负责签名。
func (s *Server) handleSignURL(c *gin.Context) {
	var req signURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误")
		return
	}
	if req.FilePath == "" {
		fail(c, http.StatusBadRequest, "请提供文件路径")
		return
	}

	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int(s.cfg.App.SignTTL / time.Second)
	}

	url, err := s.signer.SignGetURL(c.Request.Context(), req.FilePath, time.Duration(expiresIn)*time.Second)
	if err != nil {
		s.logger.Error("sign url failed", slog.String("path", req.FilePath), slog.Any("error", err))
		fail(c, http.StatusInternalServerError, "生成访问链接失败")
		return
	}

	ok(c, gin.H{"url": url, "expiresIn": expiresIn})
}

type immPreviewRequest struct {
	FilePath      string `json:"filePath"`
	FileName      string `json:"fileName"`
	Readonly      *bool  `json:"readonly"`
	AllowExport   bool   `json:"allowExport"`
	AllowPrint    bool   `json:"allowPrint"`
	AllowCopy     *bool  `json:"allowCopy"`
	WatermarkText string `json:"watermarkText"`
}

// handleIMMPreview 签发文档在线预览凭证。
//
// 默认只读、禁导出、禁打印、允许复制。预览会话绑定当前用户的
// 脱敏标识，水印与审计轨迹都不会泄露完整邮箱。
func (s *Server) handleIMMPreview(c *gin.Context) {
	var req immPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "请求参数错误")
		return
	}
	if req.FilePath == "" {
		fail(c, http.StatusBadRequest, "请提供文件路径")
		return
	}

	user := middleware.CurrentUser(c)
	if user == nil {
		fail(c, http.StatusUnauthorized, "未提供认证令牌")
		return
	}

	perm := weboffice.Permission{
		Readonly: req.Readonly == nil || *req.Readonly,
		Print:    req.AllowPrint,
		Copy:     req.AllowCopy == nil || *req.AllowCopy,
		Export:   req.AllowExport,
	}

	var wm *weboffice.Watermark
	if req.WatermarkText != "" {
		wm = weboffice.NewTextWatermark(req.WatermarkText)
	}

	viewer := weboffice.Viewer{
		ID:   user.ID,
		Name: maskIdentifier(user.Identifier()),
	}

	cred, err := s.preview.MintToken(c.Request.Context(), req.FilePath, req.FileName, perm, wm, viewer)
	if err != nil {
		s.logger.Error("mint preview token failed", slog.String("path", req.FilePath), slog.Any("error", err))
		fail(c, http.StatusInternalServerError, "生成预览链接失败")
		return
	}

	ok(c, gin.H{
		"accessToken":             cred.AccessToken,
		"webofficeURL":            cred.WebOfficeURL,
		"refreshToken":            cred.RefreshToken,
		"accessTokenExpiredTime":  cred.AccessTokenExpiredTime,
		"refreshTokenExpiredTime": cred.RefreshTokenExpiredTime,
	})
}

type immRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// handleIMMRefresh 刷新预览凭证。
func (s *Server) handleIMMRefresh(c *gin.Context) {
	var req immRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		fail(c, http.StatusBadRequest, "请提供刷新令牌")
		return
	}

	cred, err := s.preview.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		fail(c, http.StatusInternalServerError, "刷新预览凭证失败")
		return
	}

	ok(c, gin.H{
		"accessToken":             cred.AccessToken,
		"refreshToken":            cred.RefreshToken,
		"accessTokenExpiredTime":  cred.AccessTokenExpiredTime,
		"refreshTokenExpiredTime": cred.RefreshTokenExpiredTime,
	})
}

// maskIdentifier 对登录标识脱敏：邮箱保留前 3 位本地部分，手机号保留前 3 后 4。
func maskIdentifier(identifier string) string {
	if identifier == "" {
		return ""
	}
	masked := weboffice.MaskEmail(identifier)
	if masked != identifier {
		return masked
	}
	if len(identifier) >= 8 {
		return identifier[:3] + "****" + identifier[len(identifier)-4:]
	}
	return identifier
}
