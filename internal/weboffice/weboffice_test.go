package weboffice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"brillance/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(&config.IMMConfig{
		Endpoint:     srv.URL,
		ProjectName:  "brillance-imm",
		AccessKey:    "ak",
		AccessSecret: "sk",
	}, "brillance-private", 5*time.Second, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestMintToken(t *testing.T) {
	var got mintRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Action") != "GenerateWebofficeToken" {
			t.Errorf("action = %q", r.URL.Query().Get("Action"))
		}
		if r.Header.Get("X-Acs-Access-Key-Id") != "ak" {
			t.Errorf("missing access key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(Credential{
			AccessToken:             "at-1",
			WebOfficeURL:            "https://office.example/view",
			RefreshToken:            "rt-1",
			AccessTokenExpiredTime:  "2026-01-01T00:30:00Z",
			RefreshTokenExpiredTime: "2026-01-02T00:00:00Z",
		})
	})

	perm := Permission{Readonly: true, Copy: true}
	wm := NewTextWatermark("abc***@qq.com")
	cred, err := c.MintToken(context.Background(), "book-files/a.docx", "a.docx", perm, wm, Viewer{ID: "u1", Name: "abc***@qq.com"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if cred.AccessToken != "at-1" || cred.RefreshToken != "rt-1" {
		t.Fatalf("cred = %+v", cred)
	}

	if got.ProjectName != "brillance-imm" {
		t.Errorf("project = %q", got.ProjectName)
	}
	if got.SourceURI != "oss://brillance-private/book-files/a.docx" {
		t.Errorf("source uri = %q", got.SourceURI)
	}
	if !got.Permission.Readonly || got.Permission.Print || !got.Permission.Copy || got.Permission.Export {
		t.Errorf("permission = %+v", got.Permission)
	}
	if got.User == nil || got.User.Name != "abc***@qq.com" {
		t.Errorf("user = %+v", got.User)
	}
	if got.Watermark == nil {
		t.Fatalf("watermark missing")
	}
	if got.Watermark.Type != 1 ||
		got.Watermark.FillStyle != "rgba(192,192,192,0.6)" ||
		got.Watermark.Font != "bold 20px Serif" ||
		got.Watermark.Rotate != -0.7854 ||
		got.Watermark.Horizontal != 50 ||
		got.Watermark.Vertical != 50 {
		t.Errorf("watermark defaults = %+v", got.Watermark)
	}
}

func TestMintToken_FullURLInput(t *testing.T) {
	var got mintRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(Credential{AccessToken: "at", WebOfficeURL: "u"})
	})

	if _, err := c.MintToken(context.Background(), "https://cdn.example.com/book-files/b.pdf", "", Permission{}, nil, Viewer{}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got.SourceURI != "oss://brillance-private/book-files/b.pdf" {
		t.Errorf("source uri = %q", got.SourceURI)
	}
	if got.Watermark != nil {
		t.Errorf("unexpected watermark")
	}
	if got.User != nil {
		t.Errorf("unexpected user")
	}
}

func TestMintToken_RemoteFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	})

	_, err := c.MintToken(context.Background(), "a.docx", "", Permission{Readonly: true}, nil, Viewer{})
	if !errors.Is(err, ErrPreviewGeneration) {
		t.Fatalf("err = %v, want ErrPreviewGeneration", err)
	}
}

func TestMintToken_IncompleteCredential(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Credential{AccessToken: "at"})
	})

	_, err := c.MintToken(context.Background(), "a.docx", "", Permission{}, nil, Viewer{})
	if !errors.Is(err, ErrPreviewGeneration) {
		t.Fatalf("err = %v, want ErrPreviewGeneration", err)
	}
}

func TestRefreshToken(t *testing.T) {
	var got refreshRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Action") != "RefreshWebofficeToken" {
			t.Errorf("action = %q", r.URL.Query().Get("Action"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(Credential{AccessToken: "at-2", RefreshToken: "rt-2"})
	})

	cred, err := c.RefreshToken(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got.RefreshToken != "rt-1" || got.ProjectName != "brillance-imm" {
		t.Errorf("request = %+v", got)
	}
	if cred.AccessToken != "at-2" || cred.RefreshToken != "rt-2" {
		t.Errorf("cred = %+v", cred)
	}

	if _, err := c.RefreshToken(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty refresh token")
	}
}

func TestNewClient_MissingConfig(t *testing.T) {
	if _, err := NewClient(&config.IMMConfig{ProjectName: "p"}, "b", 0, nil); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
	if _, err := NewClient(&config.IMMConfig{Endpoint: "e", ProjectName: "p"}, "", 0, nil); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abcdefg@gmail.com", "abc***@gmail.com"},
		{"324433@qq.com", "324***@qq.com"},
		{"ab@x.com", "a***@x.com"},
		{"abc@x.com", "a***@x.com"},
		{"a@x.com", "a***@x.com"},
		{"not-an-email", "not-an-email"},
		{"@x.com", "@x.com"},
		{"abc@", "abc@"},
	}
	for _, tc := range cases {
		if got := MaskEmail(tc.in); got != tc.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
