package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"time"

	"brillance/internal/model"
	"brillance/internal/pkg/metrics"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)
	codePattern  = regexp.MustCompile(`^\d{6}$`)
)

// CodeStore 持久化验证码记录。
type CodeStore interface {
	// LatestByIdentifier 返回该标识最近一条记录（无论是否已用），不存在时返回 (nil, nil)。
	LatestByIdentifier(ctx context.Context, identifier string) (*model.VerificationCode, error)
	// LatestUnused 返回该标识 + 验证码匹配的最近一条未使用记录，不存在时返回 (nil, nil)。
	LatestUnused(ctx context.Context, identifier, code string) (*model.VerificationCode, error)
	Create(ctx context.Context, rec *model.VerificationCode) error
	Delete(ctx context.Context, id uint) error
	MarkUsed(ctx context.Context, id uint) error
}

// Channel 验证码投递通道（邮件或短信）。
type Channel interface {
	Send(ctx context.Context, destination, code string) error
}

// Service 管理验证码的生成、限频、投递与校验。
type Service struct {
	store        CodeStore
	email        Channel
	sms          Channel
	codeTTL      time.Duration
	sendInterval time.Duration
	logger       *slog.Logger
}

// NewService 创建验证码服务。
func NewService(store CodeStore, email, sms Channel, codeTTL, sendInterval time.Duration, logger *slog.Logger) *Service {
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	if sendInterval <= 0 {
		sendInterval = 60 * time.Second
	}
	return &Service{
		store:        store,
		email:        email,
		sms:          sms,
		codeTTL:      codeTTL,
		sendInterval: sendInterval,
		logger:       logger,
	}
}

// RequestCode 下发一条验证码。
//
// 流程：校验标识格式 → 检查发送间隔 → 生成并持久化 → 投递。
// 投递失败时删除刚创建的记录，保证不会留下"可校验但未送达"的孤儿验证码。
// 间隔检查与写入之间存在窄竞态，最坏结果是多发一条短信，属于可接受的取舍。
func (s *Service) RequestCode(ctx context.Context, identifier string, channel model.Channel, purpose string) error {
	ch, err := s.channelFor(identifier, channel)
	if err != nil {
		return err
	}

	latest, err := s.store.LatestByIdentifier(ctx, identifier)
	if err != nil {
		return fmt.Errorf("lookup latest code: %w", err)
	}
	if latest != nil {
		elapsed := time.Since(latest.CreatedAt)
		if elapsed < s.sendInterval {
			return &RateLimitedError{Wait: s.sendInterval - elapsed}
		}
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	rec := &model.VerificationCode{
		Identifier: identifier,
		Channel:    channel,
		Code:       code,
		Type:       purpose,
		ExpiresAt:  time.Now().Add(s.codeTTL),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return fmt.Errorf("save code: %w", err)
	}

	if err := ch.Send(ctx, identifier, code); err != nil {
		// 补偿删除：失败的发送不能留下可用的验证码
		if delErr := s.store.Delete(ctx, rec.ID); delErr != nil && s.logger != nil {
			s.logger.Error("cleanup undelivered code failed",
				slog.Uint64("id", uint64(rec.ID)),
				slog.String("error", delErr.Error()))
		}
		metrics.CodeDeliveryFailedTotal.WithLabelValues(string(channel)).Inc()
		if s.logger != nil {
			s.logger.Warn("code delivery failed",
				slog.String("channel", string(channel)),
				slog.String("error", err.Error()))
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	metrics.CodesSentTotal.WithLabelValues(string(channel)).Inc()
	if s.logger != nil {
		s.logger.Info("verification code sent",
			slog.String("channel", string(channel)),
			slog.String("purpose", purpose))
	}
	return nil
}

// VerifyCode 校验验证码并返回命中的记录。
//
// 校验成功不会标记记录已使用——消费动作由注册/登录流程调用 Consume 完成，
// 避免后续步骤失败时验证码被提前作废。
func (s *Service) VerifyCode(ctx context.Context, identifier, code string) (*model.VerificationCode, error) {
	if !codePattern.MatchString(code) {
		return nil, ErrInvalidCode
	}

	rec, err := s.store.LatestUnused(ctx, identifier, code)
	if err != nil {
		return nil, fmt.Errorf("lookup code: %w", err)
	}
	if rec == nil {
		// 区分"从未请求"与"请求过但不匹配"
		any, err := s.store.LatestByIdentifier(ctx, identifier)
		if err != nil {
			return nil, fmt.Errorf("lookup any code: %w", err)
		}
		if any == nil {
			return nil, ErrNoCodeRequested
		}
		return nil, ErrCodeMismatch
	}

	if !time.Now().Before(rec.ExpiresAt) {
		return nil, ErrCodeExpired
	}

	return rec, nil
}

// Consume 将验证码标记为已使用。注册/登录成功路径各调用一次。
func (s *Service) Consume(ctx context.Context, id uint) error {
	if err := s.store.MarkUsed(ctx, id); err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	return nil
}

// channelFor 根据通道校验标识格式并返回对应的投递实现。
func (s *Service) channelFor(identifier string, channel model.Channel) (Channel, error) {
	switch channel {
	case model.ChannelEmail:
		if !emailPattern.MatchString(identifier) {
			return nil, ErrInvalidIdentifier
		}
		if s.email == nil {
			return nil, fmt.Errorf("email channel not configured")
		}
		return s.email, nil
	case model.ChannelSMS:
		if !phonePattern.MatchString(identifier) {
			return nil, ErrInvalidIdentifier
		}
		if s.sms == nil {
			return nil, fmt.Errorf("sms channel not configured")
		}
		return s.sms, nil
	default:
		return nil, ErrInvalidIdentifier
	}
}

// generateCode 生成 [100000, 999999] 上均匀分布的 6 位数字验证码。
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
