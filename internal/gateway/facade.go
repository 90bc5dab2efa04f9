package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Facade é o único ponto de entrada dos chamadores: roteia pela identidade da
// plataforma, aplica a política de re-tentativa restrita a limite de
// requisições e garante que nenhum pânico ou erro cru de adapter escapa —
// sempre volta um Result ou um erro da taxonomia (Config/Rejected/Unknown).
type Facade struct {
	Log      *zap.Logger
	Creds    *Resolver
	HTTP     *http.Client
	Retry    RetryPolicy
	Tokens   TokenStore
	TokenTTL time.Duration
}

func NewFacade(log *zap.Logger, creds *Resolver, timeout time.Duration, tokens TokenStore, tokenTTL time.Duration) *Facade {
	return &Facade{
		Log:      log,
		Creds:    creds,
		HTTP:     &http.Client{Timeout: timeout},
		Retry:    DefaultRetryPolicy(),
		Tokens:   tokens,
		TokenTTL: tokenTTL,
	}
}

// adapterFor monta o adapter da família correspondente. Plataforma não
// mapeada cai na família api-key, o protocolo padrão de integrações novas.
func (f *Facade) adapterFor(platform string, creds Credentials) (Adapter, error) {
	switch platform {
	case PlatformBetone, PlatformMaxline, PlatformGrandbet, PlatformRubet:
		return NewCashdesk(platform, creds, f.HTTP)
	case PlatformWintime:
		return NewSessionSign(platform, creds, f.HTTP)
	case PlatformStavkaclub:
		return NewSessionLogin(platform, creds, f.HTTP, f.Tokens, f.TokenTTL)
	default:
		return NewAPIKey(platform, creds, f.HTTP)
	}
}

func (f *Facade) Deposit(ctx context.Context, platform, accountRef string, amountCents int64) (Result, error) {
	return f.call(ctx, platform, func(a Adapter) (Result, error) {
		return a.Deposit(ctx, accountRef, amountCents)
	})
}

func (f *Facade) VerifyAndExecute(ctx context.Context, platform, accountRef, code string) (Result, error) {
	return f.call(ctx, platform, func(a Adapter) (Result, error) {
		return a.VerifyAndExecute(ctx, accountRef, code)
	})
}

func (f *Facade) call(ctx context.Context, platform string, op func(Adapter) (Result, error)) (Result, error) {
	creds, err := f.Creds.Resolve(ctx, platform)
	if err != nil {
		return Result{}, err
	}
	adapter, err := f.adapterFor(platform, creds)
	if err != nil {
		return Result{}, err
	}

	return f.Retry.Do(ctx, func() (res Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				// pânico no meio da chamada: não dá pra afirmar se o lado
				// remoto executou
				f.Log.Error("gateway adapter panic",
					zap.String("platform", platform), zap.Any("panic", r))
				res, err = Result{}, &UnknownOutcomeError{Err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		return op(adapter)
	})
}
