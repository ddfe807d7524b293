package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"brillance/internal/model"
)

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	raw, err := issuer.Issue("user-1", "user@test.com", model.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Identifier != "user@test.com" {
		t.Fatalf("identifier = %q", claims.Identifier)
	}
	if claims.Role != model.RoleUser {
		t.Fatalf("role = %q", claims.Role)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	issuer := NewIssuer("secret-a", time.Hour)
	other := NewIssuer("secret-b", time.Hour)

	raw, err := issuer.Issue("user-1", "user@test.com", model.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := other.Verify(raw); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	raw, err := issuer.Issue("user-1", "user@test.com", model.RoleUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token format")
	}
	// 篡改 payload 段，签名必须失配
	tampered := parts[0] + "." + parts[1][:len(parts[1])-2] + "aa." + parts[2]

	if _, err := issuer.Verify(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	issuer := NewIssuer("test-secret", -time.Minute)

	raw, err := issuer.Issue("user-1", "user@test.com", model.RoleAdmin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := issuer.Verify(raw); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for expired token, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := issuer.Verify(raw); !errors.Is(err, ErrInvalid) {
			t.Fatalf("input %q: expected ErrInvalid, got %v", raw, err)
		}
	}
}
