package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type capturedRequest struct {
	Path      string
	Sign      string
	Body      map[string]any
	BasicUser string
	BasicPass string
	HasBasic  bool
}

func cashdeskServer(t *testing.T, captured *capturedRequest, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Sign = r.Header.Get("sign")
		captured.BasicUser, captured.BasicPass, captured.HasBasic = r.BasicAuth()
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &captured.Body); err != nil {
			t.Errorf("corpo não é JSON: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
}

func cashdeskCreds(baseURL string) Credentials {
	return Credentials{
		Platform:    PlatformBetone,
		BaseURL:     baseURL,
		CashdeskID:  "1177",
		CashierPass: "p4ss",
		SharedHash:  "s3cr3th4sh",
	}
}

// Vetor fixo: qualquer mudança na ordem ou grafia dos blocos assinados quebra
// a integração com as quatro plataformas ao mesmo tempo.
func TestCashdeskDepositSignature(t *testing.T) {
	var got capturedRequest
	srv := cashdeskServer(t, &got, `{"success":true,"summa":"500.00","message":"ok"}`)
	defer srv.Close()

	cd, err := NewCashdesk(PlatformBetone, cashdeskCreds(srv.URL), srv.Client())
	if err != nil {
		t.Fatalf("new cashdesk: %v", err)
	}
	res, err := cd.Deposit(context.Background(), "IVAN99", 50000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if got.Path != "/Deposit/IVAN99" {
		t.Fatalf("path = %q", got.Path)
	}
	const wantSign = "e5473af2f7c4a9dba5f1aa55202208594df54b143bed6ee9388ac1b24ae0c4f8"
	if got.Sign != wantSign {
		t.Fatalf("sign = %q, want %q", got.Sign, wantSign)
	}
	const wantConfirm = "54921b4d9acde0933e53854dc8841a94"
	if got.Body["confirm"] != wantConfirm {
		t.Fatalf("confirm = %v, want %q", got.Body["confirm"], wantConfirm)
	}
	if got.Body["cashdeskId"] != "1177" || got.Body["lng"] != "ru" || got.Body["summa"] != "500.00" {
		t.Fatalf("payload: %v", got.Body)
	}
	if got.HasBasic {
		t.Fatal("betone não usa basic auth")
	}
	if !res.Success || res.AmountCents != 50000 {
		t.Fatalf("result: %+v", res)
	}
}

func TestCashdeskLowercaseRefInConfirm(t *testing.T) {
	var got capturedRequest
	srv := cashdeskServer(t, &got, `{"success":true}`)
	defer srv.Close()

	creds := cashdeskCreds(srv.URL)
	creds.Platform = PlatformMaxline
	cd, err := NewCashdesk(PlatformMaxline, creds, srv.Client())
	if err != nil {
		t.Fatalf("new cashdesk: %v", err)
	}
	if _, err := cd.Deposit(context.Background(), "IVAN99", 50000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// O ref no confirm vai em minúsculas, mas o path e a assinatura preservam
	// o cadastro original
	const wantConfirm = "9cd97ad773d03bd9f7909662e7cb7b29"
	if got.Body["confirm"] != wantConfirm {
		t.Fatalf("confirm = %v, want %q", got.Body["confirm"], wantConfirm)
	}
	if got.Path != "/Deposit/IVAN99" {
		t.Fatalf("path = %q", got.Path)
	}
}

func TestCashdeskBasicAuthPlatforms(t *testing.T) {
	var got capturedRequest
	srv := cashdeskServer(t, &got, `{"success":true}`)
	defer srv.Close()

	creds := cashdeskCreds(srv.URL)
	creds.Platform = PlatformGrandbet
	creds.BasicUser = "cashier"
	creds.BasicPass = "basicpw"
	cd, err := NewCashdesk(PlatformGrandbet, creds, srv.Client())
	if err != nil {
		t.Fatalf("new cashdesk: %v", err)
	}
	if _, err := cd.Deposit(context.Background(), "IVAN99", 50000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !got.HasBasic || got.BasicUser != "cashier" || got.BasicPass != "basicpw" {
		t.Fatalf("basic auth: %+v", got)
	}
}

func TestCashdeskPayoutSignsCodeBlock(t *testing.T) {
	var got capturedRequest
	srv := cashdeskServer(t, &got, `{"success":true,"message":"paid"}`)
	defer srv.Close()

	cd, err := NewCashdesk(PlatformBetone, cashdeskCreds(srv.URL), srv.Client())
	if err != nil {
		t.Fatalf("new cashdesk: %v", err)
	}
	res, err := cd.VerifyAndExecute(context.Background(), "IVAN99", "CODE-42")
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if got.Path != "/Payout/IVAN99" {
		t.Fatalf("path = %q", got.Path)
	}
	if got.Body["code"] != "CODE-42" {
		t.Fatalf("payload: %v", got.Body)
	}
	// A assinatura do saque cobre o bloco "code=", não "summa="
	if got.Sign != cd.sign("IVAN99", "code=CODE-42") {
		t.Fatalf("sign = %q", got.Sign)
	}
	if got.Sign == cd.sign("IVAN99", "summa=500.00") {
		t.Fatal("assinatura de saque igual à de depósito")
	}
	if res.Message != "paid" {
		t.Fatalf("result: %+v", res)
	}
}

func TestNewCashdeskValidatesCredentials(t *testing.T) {
	creds := cashdeskCreds("http://x")
	creds.SharedHash = ""
	if _, err := NewCashdesk(PlatformBetone, creds, nil); err == nil {
		t.Fatal("shared_hash ausente deveria falhar")
	} else {
		var cfg *ConfigError
		if !errors.As(err, &cfg) || cfg.Field != "shared_hash" {
			t.Fatalf("erro: %v", err)
		}
	}

	creds = cashdeskCreds("http://x")
	creds.Platform = PlatformRubet
	if _, err := NewCashdesk(PlatformRubet, creds, nil); err == nil {
		t.Fatal("rubet sem basic auth deveria falhar")
	}
}
