package weboffice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"brillance/internal/config"
	"brillance/internal/oss"
	"brillance/internal/pkg/metrics"
)

// ErrPreviewGeneration 预览凭证服务调用失败。
// 具体原因记录在服务端日志，不向客户端透出。
var ErrPreviewGeneration = errors.New("preview generation failed")

// Permission 在线预览的权限集合。四项均为显式布尔，零值即全部禁止。
type Permission struct {
	Readonly bool `json:"Readonly"`
	Print    bool `json:"Print"`
	Copy     bool `json:"Copy"`
	Export   bool `json:"Export"`
}

// Watermark 文档水印描述。Type=1 为文字水印。
type Watermark struct {
	Type       int     `json:"Type"`
	Value      string  `json:"Value"`
	FillStyle  string  `json:"FillStyle"`
	Font       string  `json:"Font"`
	Rotate     float64 `json:"Rotate"`
	Horizontal int     `json:"Horizontal"`
	Vertical   int     `json:"Vertical"`
}

// NewTextWatermark 构造一个带默认样式的文字水印：
// 浅灰半透明、-45 度倾斜、50px 横纵间距。
func NewTextWatermark(text string) *Watermark {
	return &Watermark{
		Type:       1,
		Value:      text,
		FillStyle:  "rgba(192,192,192,0.6)",
		Font:       "bold 20px Serif",
		Rotate:     -0.7854,
		Horizontal: 50,
		Vertical:   50,
	}
}

// Viewer 预览会话绑定的用户身份。Name 必须是脱敏后的展示名。
type Viewer struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Avatar string `json:"Avatar,omitempty"`
}

// Credential 预览服务返回的凭证对。
// 凭证签发后本地不保留副本，生命周期由预览服务管理。
type Credential struct {
	AccessToken             string `json:"AccessToken"`
	WebOfficeURL            string `json:"WebofficeURL"`
	RefreshToken            string `json:"RefreshToken"`
	AccessTokenExpiredTime  string `json:"AccessTokenExpiredTime"`
	RefreshTokenExpiredTime string `json:"RefreshTokenExpiredTime"`
}

// Client 调用文档预览凭证服务（IMM WebOffice）。
type Client struct {
	cfg    *config.IMMConfig
	bucket string
	client *http.Client
	logger *slog.Logger
}

// NewClient 创建预览凭证客户端。bucket 为私有文件所在的 Bucket。
func NewClient(cfg *config.IMMConfig, bucket string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" || cfg.ProjectName == "" {
		return nil, fmt.Errorf("imm endpoint or project missing")
	}
	if bucket == "" {
		return nil, fmt.Errorf("imm source bucket missing")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		bucket: bucket,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

type mintRequest struct {
	ProjectName string     `json:"ProjectName"`
	SourceURI   string     `json:"SourceURI"`
	Filename    string     `json:"Filename,omitempty"`
	Permission  Permission `json:"Permission"`
	Watermark   *Watermark `json:"Watermark,omitempty"`
	User        *Viewer    `json:"User,omitempty"`
}

type refreshRequest struct {
	ProjectName  string `json:"ProjectName"`
	RefreshToken string `json:"RefreshToken"`
}

// MintToken 为私有文件签发预览凭证。
//
// filePath 可以是对象路径或完整 URL。viewer.Name 会原样写入预览会话，
// 调用方必须先做脱敏（见 MaskEmail）。失败统一折叠为 ErrPreviewGeneration。
func (c *Client) MintToken(ctx context.Context, filePath, fileName string, perm Permission, wm *Watermark, viewer Viewer) (*Credential, error) {
	key := oss.ObjectPath(filePath)
	if key == "" {
		return nil, fmt.Errorf("empty file path")
	}

	req := mintRequest{
		ProjectName: c.cfg.ProjectName,
		SourceURI:   fmt.Sprintf("oss://%s/%s", c.bucket, key),
		Filename:    fileName,
		Permission:  perm,
		Watermark:   wm,
	}
	if viewer.ID != "" || viewer.Name != "" {
		req.User = &viewer
	}

	var cred Credential
	if err := c.call(ctx, "GenerateWebofficeToken", req, &cred); err != nil {
		if c.logger != nil {
			c.logger.Error("mint preview token failed",
				slog.String("source", req.SourceURI),
				slog.Any("error", err))
		}
		return nil, fmt.Errorf("%w: %v", ErrPreviewGeneration, err)
	}
	if cred.AccessToken == "" || cred.WebOfficeURL == "" {
		return nil, fmt.Errorf("%w: incomplete credential", ErrPreviewGeneration)
	}

	metrics.PreviewTokenTotal.Inc()
	return &cred, nil
}

// RefreshToken 用 refresh token 换取新的凭证对。
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Credential, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("empty refresh token")
	}

	req := refreshRequest{
		ProjectName:  c.cfg.ProjectName,
		RefreshToken: refreshToken,
	}

	var cred Credential
	if err := c.call(ctx, "RefreshWebofficeToken", req, &cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreviewGeneration, err)
	}
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("%w: incomplete credential", ErrPreviewGeneration)
	}
	return &cred, nil
}

// call 按 Action 调用预览服务并解析响应。
func (c *Client) call(ctx context.Context, action string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.cfg.Endpoint, "/") + "/?Action=" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Acs-Access-Key-Id", c.cfg.AccessKey)
	req.Header.Set("X-Acs-Access-Key-Secret", c.cfg.AccessSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call preview service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("preview service status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// MaskEmail 邮箱脱敏：保留本地部分前 3 个字符，其余替换为 ***，域名保留。
// 本地部分不足 4 个字符时只保留第 1 个。非邮箱格式原样返回。
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 3 {
		return local[:1] + "***@" + domain
	}
	return local[:3] + "***@" + domain
}
