package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy concentra a política de re-tentativa do facade: teto de
// tentativas, backoff crescente e o predicado do que é re-tentável. Só
// respostas de limite de requisição passam no predicado padrão — re-tentar
// qualquer outra falha de depósito arrisca crédito duplicado.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration // espera antes da tentativa i+1; o último vale para as demais
	Retryable   func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond},
		Retryable:   func(err error) bool { return errors.Is(err, ErrRateLimited) },
	}
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt >= len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[attempt]
}

// Do executa fn até MaxAttempts enquanto o erro for re-tentável. Estourado o
// teto, a falha vira recusa terminal — a solicitação nunca fica pendente.
func (p RetryPolicy) Do(ctx context.Context, fn func() (Result, error)) (Result, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var res Result
	var err error
	for i := 0; i < attempts; i++ {
		res, err = fn()
		if err == nil || p.Retryable == nil || !p.Retryable(err) {
			return res, err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(p.wait(i)):
		case <-ctx.Done():
			// a última resposta foi 429: desfecho conhecido, sem ambiguidade
			return Result{}, &RejectedError{Msg: "limite de requisições: cancelado durante backoff"}
		}
	}
	return Result{}, &RejectedError{Msg: fmt.Sprintf("limite de requisições: %d tentativas esgotadas", attempts)}
}
