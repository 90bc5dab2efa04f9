package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

// APIKey implementa a família mais simples: segredo compartilhado em header e
// identificadores numéricos no corpo. É a família padrão para plataformas
// novas que ainda não têm protocolo próprio mapeado.
type APIKey struct {
	Platform string
	Creds    Credentials
	HTTP     *http.Client
}

func NewAPIKey(platform string, creds Credentials, client *http.Client) (*APIKey, error) {
	if err := creds.require(map[string]string{"api_key": creds.APIKey}); err != nil {
		return nil, err
	}
	return &APIKey{Platform: platform, Creds: creds, HTTP: client}, nil
}

func (a *APIKey) post(ctx context.Context, path string, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &RejectedError{Msg: "payload: " + err.Error()}
	}
	req, err := newJSONRequest(ctx, http.MethodPost, a.Creds.BaseURL+path, body)
	if err != nil {
		return Result{}, &RejectedError{Msg: err.Error()}
	}
	req.Header.Set("X-Api-Key", a.Creds.APIKey)

	raw, _, err := doJSON(a.HTTP, req)
	if err != nil {
		return Result{}, err
	}
	return decodeResult(raw)
}

func (a *APIKey) accountID(accountRef string) (int64, error) {
	id, err := strconv.ParseInt(accountRef, 10, 64)
	if err != nil {
		return 0, &RejectedError{Msg: "conta deve ser numérica: " + accountRef}
	}
	return id, nil
}

func (a *APIKey) Deposit(ctx context.Context, accountRef string, amountCents int64) (Result, error) {
	id, err := a.accountID(accountRef)
	if err != nil {
		return Result{}, err
	}
	return a.post(ctx, "/v1/deposit", map[string]any{
		"account_id":   id,
		"amount_cents": amountCents,
	})
}

func (a *APIKey) VerifyAndExecute(ctx context.Context, accountRef, code string) (Result, error) {
	id, err := a.accountID(accountRef)
	if err != nil {
		return Result{}, err
	}
	return a.post(ctx, "/v1/payout/confirm", map[string]any{
		"account_id": id,
		"code":       code,
	})
}
