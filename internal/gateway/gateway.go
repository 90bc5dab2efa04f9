package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Plataformas atendidas. A família de assinatura é decidida por identidade
// de plataforma, não por configuração.
const (
	// Família cashdesk (hash duplo com segredo compartilhado)
	PlatformBetone   = "betone"
	PlatformMaxline  = "maxline"
	PlatformGrandbet = "grandbet"
	PlatformRubet    = "rubet"

	// Família sessão assinada por timestamp
	PlatformWintime = "wintime"

	// Família API key em header (default para plataformas novas)
	PlatformPlayhall = "playhall"

	// Família login de sessão (bearer + session id)
	PlatformStavkaclub = "stavkaclub"
)

// Result é o formato único de resposta, já normalizado a partir das formas
// heterogêneas que cada plataforma devolve.
type Result struct {
	Success     bool
	AmountCents int64
	Message     string
}

// Adapter é o contrato de cada família de assinatura.
// VerifyAndExecute: em várias plataformas validar o código É a execução do
// saque, uma única chamada remota irreversível.
type Adapter interface {
	Deposit(ctx context.Context, accountRef string, amountCents int64) (Result, error)
	VerifyAndExecute(ctx context.Context, accountRef, code string) (Result, error)
}

// ErrRateLimited sinaliza resposta de limite de requisições (HTTP 429 ou
// padrão de mensagem da plataforma). É o único erro re-tentável.
var ErrRateLimited = errors.New("gateway rate limited")

// ConfigError indica credencial ausente/inválida; falha imediata, nunca
// re-tentada e nunca transiciona a solicitação para estado terminal.
type ConfigError struct {
	Platform string
	Field    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gateway config: %s sem %s", e.Platform, e.Field)
}

// RejectedError indica recusa explícita da plataforma (resposta definitiva).
type RejectedError struct{ Msg string }

func (e *RejectedError) Error() string { return "gateway rejected: " + e.Msg }

// UnknownOutcomeError indica timeout ou falha de transporte: a chamada pode
// ou não ter sido executada no lado remoto. Depósitos nunca são re-tentados
// automaticamente nesse caso.
type UnknownOutcomeError struct{ Err error }

func (e *UnknownOutcomeError) Error() string { return "gateway outcome unknown: " + e.Err.Error() }
func (e *UnknownOutcomeError) Unwrap() error { return e.Err }

// wireResult cobre as variações de casing e nome dos campos de resposta
// ("Success"/"success" casa pelo decoder; "Summa" vs "amount" precisa dos dois).
type wireResult struct {
	Success bool        `json:"success"`
	Summa   json.Number `json:"summa"`
	Amount  json.Number `json:"amount"`
	Message string      `json:"message"`
	Error   string      `json:"error"`
	Code    int         `json:"code"`
}

func (w *wireResult) normalize() Result {
	msg := w.Message
	if msg == "" {
		msg = w.Error
	}
	amt := w.Summa
	if amt == "" {
		amt = w.Amount
	}
	return Result{Success: w.Success, AmountCents: numberToCents(amt), Message: msg}
}

// numberToCents converte o valor decimal reportado pela plataforma em centavos
func numberToCents(n json.Number) int64 {
	if n == "" {
		return 0
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	if f < 0 {
		return int64(f*100 - 0.5)
	}
	return int64(f*100 + 0.5)
}

// FormatAmount escreve centavos no formato decimal que as plataformas esperam
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// Padrões de limite de requisição usados por plataformas que não devolvem 429
var rateLimitPatterns = []string{"too many requests", "rate limit", "request limit"}

func looksRateLimited(status int, body string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(body)
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// doJSON envia a requisição e classifica o desfecho:
// erro de transporte/timeout -> UnknownOutcomeError; 429/padrão de limite ->
// ErrRateLimited; 5xx -> UnknownOutcomeError (sem resposta definitiva);
// demais 4xx -> RejectedError. O corpo bruto volta para o adapter decodificar.
func doJSON(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, &UnknownOutcomeError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, &UnknownOutcomeError{Err: err}
	}

	switch {
	case looksRateLimited(resp.StatusCode, string(body)):
		return body, resp.StatusCode, ErrRateLimited
	case resp.StatusCode >= 500:
		return body, resp.StatusCode, &UnknownOutcomeError{Err: fmt.Errorf("http %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return body, resp.StatusCode, &RejectedError{Msg: fmt.Sprintf("http %d: %s", resp.StatusCode, excerpt(body))}
	}
	return body, resp.StatusCode, nil
}

func newJSONRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// decodeResult interpreta o corpo já validado; corpo ilegível numa resposta
// 2xx é tratado como recusa (a plataforma respondeu, só que fora de contrato)
func decodeResult(body []byte) (Result, error) {
	var w wireResult
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Result{}, &RejectedError{Msg: "resposta ilegível: " + excerpt(body)}
	}
	res := w.normalize()
	if !res.Success {
		if looksRateLimited(0, res.Message) || w.Code == http.StatusTooManyRequests {
			return Result{}, ErrRateLimited
		}
		return Result{}, &RejectedError{Msg: res.Message}
	}
	return res, nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
