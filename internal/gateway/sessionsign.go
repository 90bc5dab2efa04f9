package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"
)

// SessionSign implementa a família assinada por timestamp: a assinatura cobre
// apiKey + path + corpo JSON compacto + timestamp UTC gerado na hora. Os
// bytes assinados têm que ser exatamente os bytes transmitidos — o corpo é
// serializado uma única vez e reaproveitado.
type SessionSign struct {
	Platform string
	Creds    Credentials
	HTTP     *http.Client

	// now permite congelar o relógio em teste; nil usa time.Now
	now func() time.Time
}

const signTimeLayout = "2006.01.02 15:04:05"

func NewSessionSign(platform string, creds Credentials, client *http.Client) (*SessionSign, error) {
	err := creds.require(map[string]string{
		"api_key":    creds.APIKey,
		"secret_key": creds.SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return &SessionSign{Platform: platform, Creds: creds, HTTP: client}, nil
}

func (s *SessionSign) timestamp() string {
	if s.now != nil {
		return s.now().UTC().Format(signTimeLayout)
	}
	return time.Now().UTC().Format(signTimeLayout)
}

// signature: hex(hmac-sha256(secretKey, apiKey+path+body+timestamp)).
// Timestamp velho invalida a assinatura no lado da plataforma, então cada
// chamada gera o seu.
func (s *SessionSign) signature(path string, body []byte, ts string) string {
	mac := hmac.New(sha256.New, []byte(s.Creds.SecretKey))
	mac.Write([]byte(s.Creds.APIKey))
	mac.Write([]byte(path))
	mac.Write(body)
	mac.Write([]byte(ts))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *SessionSign) post(ctx context.Context, path string, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &RejectedError{Msg: "payload: " + err.Error()}
	}
	ts := s.timestamp()

	req, err := newJSONRequest(ctx, http.MethodPost, s.Creds.BaseURL+path, body)
	if err != nil {
		return Result{}, &RejectedError{Msg: err.Error()}
	}
	req.Header.Set("X-Api-Key", s.Creds.APIKey)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Sign", s.signature(path, body, ts))

	raw, _, err := doJSON(s.HTTP, req)
	if err != nil {
		return Result{}, err
	}
	return decodeResult(raw)
}

func (s *SessionSign) Deposit(ctx context.Context, accountRef string, amountCents int64) (Result, error) {
	return s.post(ctx, "/api/v1/deposit", map[string]any{
		"account": accountRef,
		"amount":  FormatAmount(amountCents),
	})
}

func (s *SessionSign) VerifyAndExecute(ctx context.Context, accountRef, code string) (Result, error) {
	return s.post(ctx, "/api/v1/payout/confirm", map[string]any{
		"account": accountRef,
		"code":    code,
	})
}
