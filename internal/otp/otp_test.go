package otp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"brillance/internal/model"
)

type mockStore struct {
	latestByIdentifierFunc func(ctx context.Context, identifier string) (*model.VerificationCode, error)
	latestUnusedFunc       func(ctx context.Context, identifier, code string) (*model.VerificationCode, error)
	createFunc             func(ctx context.Context, rec *model.VerificationCode) error
	deleteFunc             func(ctx context.Context, id uint) error
	markUsedFunc           func(ctx context.Context, id uint) error

	created []*model.VerificationCode
	deleted []uint
	used    []uint
}

func (m *mockStore) LatestByIdentifier(ctx context.Context, identifier string) (*model.VerificationCode, error) {
	if m.latestByIdentifierFunc != nil {
		return m.latestByIdentifierFunc(ctx, identifier)
	}
	return nil, nil
}

func (m *mockStore) LatestUnused(ctx context.Context, identifier, code string) (*model.VerificationCode, error) {
	if m.latestUnusedFunc != nil {
		return m.latestUnusedFunc(ctx, identifier, code)
	}
	return nil, nil
}

func (m *mockStore) Create(ctx context.Context, rec *model.VerificationCode) error {
	m.created = append(m.created, rec)
	if m.createFunc != nil {
		return m.createFunc(ctx, rec)
	}
	rec.ID = uint(len(m.created))
	return nil
}

func (m *mockStore) Delete(ctx context.Context, id uint) error {
	m.deleted = append(m.deleted, id)
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockStore) MarkUsed(ctx context.Context, id uint) error {
	m.used = append(m.used, id)
	if m.markUsedFunc != nil {
		return m.markUsedFunc(ctx, id)
	}
	return nil
}

type mockChannel struct {
	sendFunc func(ctx context.Context, destination, code string) error
	sent     []string
}

func (m *mockChannel) Send(ctx context.Context, destination, code string) error {
	m.sent = append(m.sent, code)
	if m.sendFunc != nil {
		return m.sendFunc(ctx, destination, code)
	}
	return nil
}

func newTestService(store *mockStore, email, sms *mockChannel) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, email, sms, 5*time.Minute, 60*time.Second, logger)
}

func TestRequestCode_Normal(t *testing.T) {
	store := &mockStore{}
	email := &mockChannel{}
	svc := newTestService(store, email, &mockChannel{})

	if err := svc.RequestCode(context.Background(), "user@test.com", model.ChannelEmail, "login"); err != nil {
		t.Fatalf("request code: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 record, got %d", len(store.created))
	}
	rec := store.created[0]
	if !regexp.MustCompile(`^\d{6}$`).MatchString(rec.Code) {
		t.Fatalf("code %q is not 6 digits", rec.Code)
	}
	if rec.Code[0] == '0' {
		t.Fatalf("code %q below 100000", rec.Code)
	}
	if len(email.sent) != 1 || email.sent[0] != rec.Code {
		t.Fatalf("delivered code mismatch: %v vs %q", email.sent, rec.Code)
	}
	until := time.Until(rec.ExpiresAt)
	if until < 4*time.Minute || until > 5*time.Minute {
		t.Fatalf("expiry window off: %v", until)
	}
}

func TestRequestCode_InvalidIdentifier(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockChannel{}, &mockChannel{})

	cases := []struct {
		identifier string
		channel    model.Channel
	}{
		{"not-an-email", model.ChannelEmail},
		{"user@test.com", model.ChannelSMS},
		{"12345678901", model.ChannelSMS}, // 非 1[3-9] 开头
		{"1381234567", model.ChannelSMS},  // 位数不足
	}
	for _, tc := range cases {
		err := svc.RequestCode(context.Background(), tc.identifier, tc.channel, "login")
		if !errors.Is(err, ErrInvalidIdentifier) {
			t.Fatalf("%s/%s: expected ErrInvalidIdentifier, got %v", tc.identifier, tc.channel, err)
		}
	}
}

func TestRequestCode_RateLimited(t *testing.T) {
	store := &mockStore{
		latestByIdentifierFunc: func(ctx context.Context, identifier string) (*model.VerificationCode, error) {
			return &model.VerificationCode{CreatedAt: time.Now().Add(-10 * time.Second)}, nil
		},
	}
	svc := newTestService(store, &mockChannel{}, &mockChannel{})

	err := svc.RequestCode(context.Background(), "user@test.com", model.ChannelEmail, "login")
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rl.WaitSeconds() < 45 || rl.WaitSeconds() > 50 {
		t.Fatalf("wait seconds = %d, want ~50", rl.WaitSeconds())
	}
	if len(store.created) != 0 {
		t.Fatalf("rate-limited call must not persist a code")
	}
}

func TestRequestCode_IntervalElapsed(t *testing.T) {
	store := &mockStore{
		latestByIdentifierFunc: func(ctx context.Context, identifier string) (*model.VerificationCode, error) {
			return &model.VerificationCode{CreatedAt: time.Now().Add(-61 * time.Second)}, nil
		},
	}
	svc := newTestService(store, &mockChannel{}, &mockChannel{})

	if err := svc.RequestCode(context.Background(), "user@test.com", model.ChannelEmail, "login"); err != nil {
		t.Fatalf("expected success after interval, got %v", err)
	}
}

func TestRequestCode_DeliveryFailureCleansUp(t *testing.T) {
	store := &mockStore{}
	email := &mockChannel{
		sendFunc: func(ctx context.Context, destination, code string) error {
			return errors.New("smtp down")
		},
	}
	svc := newTestService(store, email, &mockChannel{})

	err := svc.RequestCode(context.Background(), "user@test.com", model.ChannelEmail, "login")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if len(store.created) != 1 || len(store.deleted) != 1 {
		t.Fatalf("expected compensating delete, created=%d deleted=%d", len(store.created), len(store.deleted))
	}
	if store.deleted[0] != store.created[0].ID {
		t.Fatalf("deleted wrong record: %d vs %d", store.deleted[0], store.created[0].ID)
	}
}

func TestRequestCode_SMSChannel(t *testing.T) {
	store := &mockStore{}
	sms := &mockChannel{}
	svc := newTestService(store, &mockChannel{}, sms)

	if err := svc.RequestCode(context.Background(), "13812345678", model.ChannelSMS, "register"); err != nil {
		t.Fatalf("request sms code: %v", err)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected sms delivery, got %d", len(sms.sent))
	}
}

func TestVerifyCode_InvalidFormat(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockChannel{}, &mockChannel{})

	for _, code := range []string{"", "12345", "1234567", "abcdef", "12 456"} {
		if _, err := svc.VerifyCode(context.Background(), "user@test.com", code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("code %q: expected ErrInvalidCode, got %v", code, err)
		}
	}
}

func TestVerifyCode_NoCodeRequested(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockChannel{}, &mockChannel{})

	_, err := svc.VerifyCode(context.Background(), "nobody@test.com", "123456")
	if !errors.Is(err, ErrNoCodeRequested) {
		t.Fatalf("expected ErrNoCodeRequested, got %v", err)
	}
}

func TestVerifyCode_Mismatch(t *testing.T) {
	store := &mockStore{
		latestByIdentifierFunc: func(ctx context.Context, identifier string) (*model.VerificationCode, error) {
			return &model.VerificationCode{Code: "654321", CreatedAt: time.Now()}, nil
		},
	}
	svc := newTestService(store, &mockChannel{}, &mockChannel{})

	_, err := svc.VerifyCode(context.Background(), "user@test.com", "123456")
	if !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
}

func TestVerifyCode_Expired(t *testing.T) {
	store := &mockStore{
		latestUnusedFunc: func(ctx context.Context, identifier, code string) (*model.VerificationCode, error) {
			return &model.VerificationCode{
				ID:        7,
				Code:      code,
				ExpiresAt: time.Now().Add(-time.Second),
			}, nil
		},
	}
	svc := newTestService(store, &mockChannel{}, &mockChannel{})

	// 过期必须报 ErrCodeExpired，而不是 ErrCodeMismatch
	_, err := svc.VerifyCode(context.Background(), "user@test.com", "123456")
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestVerifyCode_SuccessDoesNotConsume(t *testing.T) {
	store := &mockStore{
		latestUnusedFunc: func(ctx context.Context, identifier, code string) (*model.VerificationCode, error) {
			return &model.VerificationCode{
				ID:        9,
				Code:      code,
				ExpiresAt: time.Now().Add(time.Minute),
			}, nil
		},
	}
	svc := newTestService(store, &mockChannel{}, &mockChannel{})

	rec, err := svc.VerifyCode(context.Background(), "user@test.com", "123456")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rec.ID != 9 {
		t.Fatalf("record id = %d", rec.ID)
	}
	if len(store.used) != 0 {
		t.Fatalf("verify must not consume the code")
	}

	if err := svc.Consume(context.Background(), rec.ID); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(store.used) != 1 || store.used[0] != 9 {
		t.Fatalf("consume did not mark the record: %v", store.used)
	}
}

func TestGenerateCode_RangeAndUniformShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q length != 6", code)
		}
		if code < "100000" || code > "999999" {
			t.Fatalf("code %q out of range", code)
		}
	}
}
