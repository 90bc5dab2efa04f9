package matcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/recon-service/repo"
)

// Store define as leituras que o matcher precisa; tudo aqui só lê e propõe,
// a serialização fica no coordenador de execução.
type Store interface {
	GetPayment(ctx context.Context, id string) (*repo.Payment, error)
	ListPendingDeposits(ctx context.Context, since time.Time) ([]repo.Request, error)
}

// Matcher seleciona a única solicitação pendente elegível para um pagamento
// recém-observado. Heurística de melhor esforço sobre um sinal ambíguo
// (texto bancário, relógio do pagador): falso negativo vai para conciliação
// manual; falso positivo não pode existir — nunca creditar o jogador errado.
type Matcher struct {
	Log   *zap.Logger
	Store Store

	Lookback     time.Duration // idade máxima da solicitação
	MaxLag       time.Duration // atraso máximo entre criação e liquidação
	EpsilonCents int64         // tolerância de valor

	OnMatched func()
	OnNoMatch func()
}

// OnNewPayment devolve o id da solicitação casada, ou "" quando não há
// candidata (o pagamento fica não-processado para revisão manual).
// Entrada idempotente: pagamento já processado é no-op.
func (m *Matcher) OnNewPayment(ctx context.Context, paymentID string) (string, error) {
	pay, err := m.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if pay.IsProcessed {
		return "", nil
	}

	since := time.Now().Add(-m.Lookback)
	candidates, err := m.Store.ListPendingDeposits(ctx, since)
	if err != nil {
		return "", err
	}

	// Candidatas vêm ordenadas por created_at; a primeira elegível é a
	// vencedora — a solicitação não paga mais antiga é atendida primeiro
	for _, r := range candidates {
		if !m.eligible(&r, pay) {
			continue
		}
		if m.OnMatched != nil {
			m.OnMatched()
		}
		m.Log.Info("payment matched",
			zap.String("paymentId", pay.ID),
			zap.String("requestId", r.ID),
			zap.Int64("amountCents", pay.AmountCents),
		)
		return r.ID, nil
	}

	if m.OnNoMatch != nil {
		m.OnNoMatch()
	}
	m.Log.Info("no eligible request for payment",
		zap.String("paymentId", pay.ID),
		zap.Int64("amountCents", pay.AmountCents),
		zap.String("bank", pay.Bank),
	)
	return "", nil
}

// eligible aplica a conjunção de restrições: a solicitação precisa existir
// antes da liquidação, dentro do atraso máximo, e com o valor exato (dentro
// do epsilon). A conjunção é o que impede crédito no jogador errado.
func (m *Matcher) eligible(r *repo.Request, pay *repo.Payment) bool {
	if r.CreatedAt.After(pay.OccurredAt) {
		// pagamento liquidado antes da solicitação existir
		return false
	}
	if pay.OccurredAt.Sub(r.CreatedAt) > m.MaxLag {
		return false
	}
	diff := r.AmountCents - pay.AmountCents
	if diff < 0 {
		diff = -diff
	}
	return diff <= m.EpsilonCents
}
