package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionSignSignsTransmittedBytes(t *testing.T) {
	var (
		gotPath string
		gotBody []byte
		gotKey  string
		gotTS   string
		gotSign string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		gotKey = r.Header.Get("X-Api-Key")
		gotTS = r.Header.Get("X-Timestamp")
		gotSign = r.Header.Get("X-Sign")
		_, _ = w.Write([]byte(`{"success":true,"amount":"120.50"}`))
	}))
	defer srv.Close()

	creds := Credentials{Platform: PlatformWintime, BaseURL: srv.URL,
		APIKey: "ak-77", SecretKey: "sk-very-secret"}
	ss, err := NewSessionSign(PlatformWintime, creds, srv.Client())
	if err != nil {
		t.Fatalf("new sessionsign: %v", err)
	}
	frozen := time.Date(2026, 3, 14, 18, 22, 5, 0, time.UTC)
	ss.now = func() time.Time { return frozen }

	res, err := ss.Deposit(context.Background(), "IVAN99", 12050)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if gotPath != "/api/v1/deposit" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "ak-77" {
		t.Fatalf("api key = %q", gotKey)
	}
	if gotTS != "2026.03.14 18:22:05" {
		t.Fatalf("timestamp = %q", gotTS)
	}

	// A assinatura tem que fechar sobre os bytes efetivamente transmitidos:
	// recalcula com o corpo recebido pelo servidor
	mac := hmac.New(sha256.New, []byte("sk-very-secret"))
	mac.Write([]byte("ak-77"))
	mac.Write([]byte("/api/v1/deposit"))
	mac.Write(gotBody)
	mac.Write([]byte("2026.03.14 18:22:05"))
	if want := hex.EncodeToString(mac.Sum(nil)); gotSign != want {
		t.Fatalf("sign = %q, want %q", gotSign, want)
	}
	if !res.Success || res.AmountCents != 12050 {
		t.Fatalf("result: %+v", res)
	}
}

func TestSessionSignPayoutPath(t *testing.T) {
	var gotPath, gotSign string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		gotSign = r.Header.Get("X-Sign")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	creds := Credentials{Platform: PlatformWintime, BaseURL: srv.URL,
		APIKey: "ak", SecretKey: "sk"}
	ss, err := NewSessionSign(PlatformWintime, creds, srv.Client())
	if err != nil {
		t.Fatalf("new sessionsign: %v", err)
	}
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ss.now = func() time.Time { return ts }

	if _, err := ss.VerifyAndExecute(context.Background(), "IVAN99", "CODE-1"); err != nil {
		t.Fatalf("payout: %v", err)
	}
	if gotPath != "/api/v1/payout/confirm" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotSign != ss.signature("/api/v1/payout/confirm", gotBody, "2026.01.02 03:04:05") {
		t.Fatal("assinatura não cobre o path do saque")
	}
}

func TestNewSessionSignRequiresSecret(t *testing.T) {
	creds := Credentials{Platform: PlatformWintime, BaseURL: "http://x", APIKey: "ak"}
	_, err := NewSessionSign(PlatformWintime, creds, nil)
	var cfg *ConfigError
	if !errors.As(err, &cfg) || cfg.Field != "secret_key" {
		t.Fatalf("erro: %v", err)
	}
}
