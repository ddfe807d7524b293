package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"brillance/internal/config"
)

// SMSSender 通过短信网关投递验证码。
type SMSSender struct {
	cfg    *config.SMSConfig
	client *http.Client
	logger *slog.Logger
}

// NewSMSSender 创建短信投递通道。timeout 为单次网关调用的上限。
func NewSMSSender(cfg *config.SMSConfig, timeout time.Duration, logger *slog.Logger) *SMSSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// smsResponse 网关响应体。Code 为 "OK" 表示受理成功。
type smsResponse struct {
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	BizID     string `json:"BizId"`
	RequestID string `json:"RequestId"`
}

// Send 发送短信验证码。
func (n *SMSSender) Send(ctx context.Context, phone string, code string) error {
	if n.cfg.TemplateCode == "" || n.cfg.AccessKey == "" {
		return fmt.Errorf("sms config missing")
	}

	param, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return fmt.Errorf("marshal template param: %w", err)
	}

	form := url.Values{}
	form.Set("PhoneNumbers", phone)
	form.Set("SignName", n.cfg.SignName)
	form.Set("TemplateCode", n.cfg.TemplateCode)
	form.Set("TemplateParam", string(param))
	form.Set("AccessKeyId", n.cfg.AccessKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("call sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms gateway status %d", resp.StatusCode)
	}

	var body smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode sms response: %w", err)
	}
	if body.Code != "OK" {
		return fmt.Errorf("sms gateway rejected: %s (%s)", body.Code, body.Message)
	}

	if n.logger != nil {
		n.logger.Info("verification sms sent",
			slog.String("phone", maskPhone(phone)),
			slog.String("biz_id", body.BizID))
	}
	return nil
}

// maskPhone 日志脱敏：保留前 3 位和后 4 位。
func maskPhone(phone string) string {
	if len(phone) < 8 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}
