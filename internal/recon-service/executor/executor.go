package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/gateway"
	"github.com/radieske/payment-recon-poc/internal/recon-service/repo"
	"github.com/radieske/payment-recon-poc/pkg/contracts/events"
)

// Store é a fatia de persistência que o coordenador usa. O claim CAS
// (PENDING/DEFERRED -> PROCESSING) é o único ponto de serialização do
// sistema; tudo acima dele só lê e propõe.
type Store interface {
	ClaimRequest(ctx context.Context, id string) (prev repo.Status, req *repo.Request, claimed bool, err error)
	ReleaseClaim(ctx context.Context, id string, prev repo.Status) error
	GetPayment(ctx context.Context, id string) (*repo.Payment, error)
	Settle(ctx context.Context, requestID string, to repo.Status, detail, processedBy string, paymentID *string) error
	GetStatus(ctx context.Context, id string) (repo.Status, error)
	ForceStatus(ctx context.Context, id string, to repo.Status, detail string) error
}

// Gateway é o facade multi-plataforma
type Gateway interface {
	Deposit(ctx context.Context, platform, accountRef string, amountCents int64) (gateway.Result, error)
	VerifyAndExecute(ctx context.Context, platform, accountRef, code string) (gateway.Result, error)
}

// Publisher emite o evento pós-commit; falha dele nunca desfaz nem bloqueia
// a transação que moveu dinheiro.
type Publisher interface {
	PublishSettled(ctx context.Context, e events.RequestSettled) error
}

// Outcome resume o desfecho de uma invocação do coordenador
type Outcome string

const (
	OutcomeNoop    Outcome = "NOOP"    // gatilho concorrente venceu ou estado não executável
	OutcomeSuccess Outcome = "SUCCESS" // liquidado e commitado
	OutcomeFailed  Outcome = "FAILED"  // recusa definitiva da plataforma
	OutcomeUnknown Outcome = "UNKNOWN" // desfecho ambíguo, vai para conferência manual
	OutcomeFault   Outcome = "FAULT"   // estado local não refletiu o desfecho nem após correção
)

// ProcessedByAuto identifica o fluxo automático na trilha de auditoria
const ProcessedByAuto = "auto-match"

// Executor é o coordenador transacional: revalida estado, chama o gateway e
// commita o desfecho em solicitação e pagamento como unidade atômica.
type Executor struct {
	Log          *zap.Logger
	Store        Store
	Gateway      Gateway
	Publisher    Publisher // opcional
	EpsilonCents int64

	OnOutcome func(string) // métrica por desfecho
	OnFault   func()       // métrica de inconsistência (sempre alertável)
}

// Execute processa um depósito para (requestID, paymentID). paymentID nil
// cobre a aprovação manual sem pagamento vinculado. Idempotente: repetir a
// chamada depois de um desfecho terminal é no-op.
func (e *Executor) Execute(ctx context.Context, requestID string, paymentID *string, processedBy string) (Outcome, error) {
	prev, req, claimed, err := e.Store.ClaimRequest(ctx, requestID)
	if err != nil {
		return OutcomeNoop, err
	}
	if !claimed {
		e.Log.Info("request not claimable, skipping",
			zap.String("requestId", requestID), zap.String("status", string(req.Status)))
		return e.outcome(OutcomeNoop), nil
	}
	if req.Kind != repo.KindDeposit {
		_ = e.Store.ReleaseClaim(ctx, requestID, prev)
		return OutcomeNoop, fmt.Errorf("request %s is not a deposit", requestID)
	}

	// Re-lê o pagamento sob o claim: se outro gatilho o consumiu no meio
	// tempo, devolve o claim e não chama a plataforma
	if paymentID != nil {
		pay, err := e.Store.GetPayment(ctx, *paymentID)
		if err != nil {
			_ = e.Store.ReleaseClaim(ctx, requestID, prev)
			return OutcomeNoop, err
		}
		if pay.IsProcessed {
			_ = e.Store.ReleaseClaim(ctx, requestID, prev)
			e.Log.Info("payment already consumed, skipping",
				zap.String("paymentId", *paymentID), zap.String("requestId", requestID))
			return e.outcome(OutcomeNoop), nil
		}
		if diff := abs(pay.AmountCents - req.AmountCents); diff > e.EpsilonCents {
			_ = e.Store.ReleaseClaim(ctx, requestID, prev)
			return OutcomeNoop, fmt.Errorf("payment %s amount %d does not match request %s amount %d",
				*paymentID, pay.AmountCents, requestID, req.AmountCents)
		}
	}

	res, gwErr := e.Gateway.Deposit(ctx, req.Platform, req.AccountRef, req.AmountCents)
	return e.finalize(ctx, req, prev, paymentID, processedBy, res, gwErr)
}

// ExecuteWithdraw valida o código de confirmação do saque — em várias
// plataformas isso JÁ executa o pagamento, então o caminho pós-chamada é o
// mesmo do depósito: nunca re-tentar às cegas.
func (e *Executor) ExecuteWithdraw(ctx context.Context, requestID, code, operator string) (Outcome, error) {
	prev, req, claimed, err := e.Store.ClaimRequest(ctx, requestID)
	if err != nil {
		return OutcomeNoop, err
	}
	if !claimed {
		e.Log.Info("request not claimable, skipping",
			zap.String("requestId", requestID), zap.String("status", string(req.Status)))
		return e.outcome(OutcomeNoop), nil
	}
	if req.Kind != repo.KindWithdraw {
		_ = e.Store.ReleaseClaim(ctx, requestID, prev)
		return OutcomeNoop, fmt.Errorf("request %s is not a withdrawal", requestID)
	}

	res, gwErr := e.Gateway.VerifyAndExecute(ctx, req.Platform, req.AccountRef, code)
	return e.finalize(ctx, req, prev, nil, operator, res, gwErr)
}

// finalize mapeia o desfecho do gateway para a transição terminal e a
// commita; depois relê e, se preciso, aplica exatamente uma re-escrita
// corretiva antes de declarar inconsistência.
func (e *Executor) finalize(ctx context.Context, req *repo.Request, prev repo.Status, paymentID *string, processedBy string, res gateway.Result, gwErr error) (Outcome, error) {
	var (
		to      repo.Status
		outcome Outcome
		detail  string
	)

	var cfgErr *gateway.ConfigError
	var rejErr *gateway.RejectedError
	var unkErr *gateway.UnknownOutcomeError

	switch {
	case gwErr == nil:
		to, outcome = repo.StatusSuccess, OutcomeSuccess
		detail = res.Message
		if detail == "" {
			detail = "ok"
		}
	case errors.As(gwErr, &cfgErr):
		// erro de configuração: nada foi chamado, devolve o claim e
		// propaga imediatamente — nunca vira estado terminal
		_ = e.Store.ReleaseClaim(ctx, req.ID, prev)
		return OutcomeNoop, gwErr
	case errors.As(gwErr, &rejErr):
		to, outcome = repo.StatusFailed, OutcomeFailed
		detail = rejErr.Msg
	case errors.As(gwErr, &unkErr):
		to, outcome = repo.StatusUnknownCheck, OutcomeUnknown
		detail = unkErr.Error()
	default:
		// erro fora da taxonomia: trata como desfecho desconhecido
		to, outcome = repo.StatusUnknownCheck, OutcomeUnknown
		detail = gwErr.Error()
	}

	settleErr := e.Store.Settle(ctx, req.ID, to, detail, processedBy, settlePayment(to, paymentID))
	if settleErr != nil {
		if errors.Is(settleErr, repo.ErrPaymentConsumed) && to == repo.StatusSuccess {
			// o dinheiro já entrou na plataforma mas o pagamento foi
			// consumido por outro fluxo: o registro da solicitação ainda tem
			// que refletir o sucesso
			detail = repo.TruncateDetail(detail + " (pagamento consumido por outro fluxo)")
			if err := e.Store.ForceStatus(ctx, req.ID, to, detail); err != nil {
				return e.fault(req.ID, to, err), nil
			}
			e.alertFault(req.ID, "payment consumed by concurrent flow")
		} else {
			// escritor concorrente mudou o estado entre o claim e o commit
			if err := e.Store.ForceStatus(ctx, req.ID, to, detail); err != nil {
				return e.fault(req.ID, to, err), nil
			}
		}
	}

	// Verificação pós-transição: relê e confere o estado terminal esperado
	cur, err := e.Store.GetStatus(ctx, req.ID)
	if err != nil || cur != to {
		if ferr := e.Store.ForceStatus(ctx, req.ID, to, detail); ferr != nil {
			return e.fault(req.ID, to, ferr), nil
		}
		cur, err = e.Store.GetStatus(ctx, req.ID)
		if err != nil || cur != to {
			return e.fault(req.ID, to, fmt.Errorf("estado %v após correção, esperado %v", cur, to)), nil
		}
	}

	e.publish(ctx, req, to, paymentID, detail)
	return e.outcome(outcome), nil
}

func settlePayment(to repo.Status, paymentID *string) *string {
	if to == repo.StatusSuccess {
		return paymentID
	}
	return nil
}

// fault registra a inconsistência local — sempre alertável, nunca engolida:
// dinheiro pode ter se movido externamente sem o registro refletir.
func (e *Executor) fault(requestID string, expected repo.Status, cause error) Outcome {
	e.alertFault(requestID, fmt.Sprintf("esperado %s: %v", expected, cause))
	return e.outcome(OutcomeFault)
}

func (e *Executor) alertFault(requestID, msg string) {
	if e.OnFault != nil {
		e.OnFault()
	}
	e.Log.Error("CONSISTENCY FAULT: local state does not reflect external outcome",
		zap.String("requestId", requestID),
		zap.String("cause", msg),
	)
}

// publish emite o evento pós-commit em melhor esforço
func (e *Executor) publish(ctx context.Context, req *repo.Request, to repo.Status, paymentID *string, detail string) {
	if e.Publisher == nil {
		return
	}
	ev := events.RequestSettled{
		RequestID:   req.ID,
		UserID:      req.UserID,
		Platform:    req.Platform,
		Kind:        string(req.Kind),
		Status:      string(to),
		AmountCents: req.AmountCents,
		Detail:      repo.TruncateDetail(detail),
		Ts:          time.Now(),
	}
	if paymentID != nil {
		ev.PaymentID = *paymentID
	}
	if err := e.Publisher.PublishSettled(ctx, ev); err != nil {
		e.Log.Warn("publish request_settled failed", zap.String("requestId", req.ID), zap.Error(err))
	}
}

func (e *Executor) outcome(o Outcome) Outcome {
	if e.OnOutcome != nil {
		e.OnOutcome(string(o))
	}
	return o
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
