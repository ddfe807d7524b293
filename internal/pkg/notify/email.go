package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"brillance/internal/config"

	"gopkg.in/gomail.v2"
)

// EmailSender 通过 SMTP 投递验证码邮件。
type EmailSender struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
}

// NewEmailSender 创建邮件投递通道。
func NewEmailSender(cfg *config.EmailConfig, logger *slog.Logger) *EmailSender {
	return &EmailSender{
		cfg:    cfg,
		logger: logger,
	}
}

// Send 发送验证码邮件。
func (n *EmailSender) Send(ctx context.Context, toEmail string, code string) error {
	if n.cfg.SMTPHost == "" || n.cfg.SMTPUser == "" || n.cfg.FromEmail == "" {
		return fmt.Errorf("email config missing")
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(n.cfg.FromEmail, n.cfg.FromAlias))
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("【%s】您的验证码是 %s", n.cfg.FromAlias, code))
	m.SetBody("text/html", buildVerificationEmailBody(n.cfg.FromAlias, code))

	d := gomail.NewDialer(n.cfg.SMTPHost, n.cfg.SMTPPort, n.cfg.SMTPUser, n.cfg.SMTPPass)

	// gomail 不感知 context，投递放入独立 goroutine 并由调用方超时兜底
	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}

	if n.logger != nil {
		n.logger.Info("verification email sent", slog.String("to", toEmail))
	}
	return nil
}

func buildVerificationEmailBody(alias, code string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="margin: 0; padding: 0; font-family: 'Segoe UI', Tahoma, sans-serif; background-color: #f5f5f5;">
  <div style="max-width: 500px; margin: 40px auto; background: #ffffff; border-radius: 12px; padding: 40px;">
    <h1 style="margin: 0 0 10px; font-size: 24px; color: #37322F;">%s</h1>
    <p style="font-size: 16px; color: #333;">您正在进行身份验证，验证码为：</p>
    <div style="background: #f8f8f8; border-radius: 8px; padding: 20px; text-align: center; margin: 20px 0;">
      <span style="font-size: 32px; font-weight: bold; color: #37322F; letter-spacing: 8px;">%s</span>
    </div>
    <p style="font-size: 14px; color: #666;">验证码有效期为 <strong>5 分钟</strong>，请尽快完成验证。</p>
    <p style="font-size: 14px; color: #999;">如果这不是您本人的操作，请忽略此邮件。</p>
    <p style="font-size: 12px; color: #999; border-top: 1px solid #eee; padding-top: 20px; text-align: center;">此邮件由系统自动发送，请勿回复。© %d %s</p>
  </div>
</body>
</html>`, alias, code, time.Now().Year(), alias)
}
