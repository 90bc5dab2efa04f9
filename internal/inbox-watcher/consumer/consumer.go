package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/parser"
	"github.com/radieske/payment-recon-poc/internal/recon-service/executor"
	"github.com/radieske/payment-recon-poc/internal/recon-service/matcher"
	"github.com/radieske/payment-recon-poc/internal/recon-service/repo"
	"github.com/radieske/payment-recon-poc/pkg/contracts/events"
)

// Store é o que o watcher precisa persistir
type Store interface {
	InsertPayment(ctx context.Context, pay *repo.Payment) (id string, created bool, err error)
}

// Processor consome notificações bancárias brutas do Kafka, decodifica,
// persiste o pagamento e aciona matcher -> coordenador. Mensagens
// irreconhecíveis vão para a DLQ e são commitadas — nunca re-tentadas para
// sempre. Callbacks de métricas por etapa, no padrão dos demais workers.
type Processor struct {
	Log      *zap.Logger
	Reader   *kafka.Reader
	Store    Store
	Matcher  *matcher.Matcher
	Executor *executor.Executor
	DLQ      *kafka.Writer // opcional

	OnConsumed func()
	OnParsed   func()
	OnMatched  func()
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal. Encerramento gracioso: o cancelamento do
// contexto é observado entre mensagens, a mensagem em voo termina de ser
// processada.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		var n events.BankNotification
		if err := json.Unmarshal(m.Value, &n); err != nil {
			p.Log.Warn("invalid notification message", zap.Error(err))
			p.toDLQ(ctx, m.Key, m.Value, "decode")
			continue
		}

		p.processOne(ctx, &n, m.Value)
	}
}

// processOne executa o fluxo de uma notificação:
// 1. Decodifica o texto bancário (parser puro)
// 2. Persiste o IncomingPayment (idempotente por message_id)
// 3. Propõe o casamento com uma solicitação pendente
// 4. Entrega ao coordenador de execução
func (p *Processor) processOne(ctx context.Context, n *events.BankNotification, raw []byte) {
	hint := parser.GuessBank(n.From, n.Subject)
	parsed, err := parser.Parse(n.Body, hint)
	if err != nil {
		// forma não reconhecida: DLQ para triagem, mensagem consumida
		p.Log.Info("unparseable notification",
			zap.String("messageId", n.MessageID), zap.String("from", n.From))
		p.toDLQ(ctx, []byte(n.MessageID), raw, "parse")
		return
	}
	if p.OnParsed != nil {
		p.OnParsed()
	}

	receivedAt := time.UnixMilli(n.ReceivedAtMs)
	occurredAt := receivedAt // fallback: horário de chegada da mensagem
	if parsed.OccurredAt != nil {
		occurredAt = *parsed.OccurredAt
	}

	payID, created, err := p.Store.InsertPayment(ctx, &repo.Payment{
		MessageID:   n.MessageID,
		AmountCents: parsed.AmountCents,
		Bank:        parsed.Bank,
		OccurredAt:  occurredAt,
		RawExcerpt:  excerpt(n.Body),
		ReceivedAt:  receivedAt,
	})
	if err != nil {
		p.Log.Error("insert payment failed", zap.String("messageId", n.MessageID), zap.Error(err))
		if p.OnError != nil {
			p.OnError("persist")
		}
		return
	}
	if !created {
		// reentrega da mesma mensagem; o matcher já é idempotente, mas não
		// há razão para reprocessar
		p.Log.Info("duplicate notification, skipping", zap.String("messageId", n.MessageID))
		return
	}

	reqID, err := p.Matcher.OnNewPayment(ctx, payID)
	if err != nil {
		p.Log.Error("match failed", zap.String("paymentId", payID), zap.Error(err))
		if p.OnError != nil {
			p.OnError("match")
		}
		return
	}
	if reqID == "" {
		return // sem candidata; pagamento fica para conciliação manual
	}
	if p.OnMatched != nil {
		p.OnMatched()
	}

	outcome, err := p.Executor.Execute(ctx, reqID, &payID, executor.ProcessedByAuto)
	if err != nil {
		p.Log.Error("execute failed",
			zap.String("requestId", reqID), zap.String("paymentId", payID), zap.Error(err))
		if p.OnError != nil {
			p.OnError("execute")
		}
		return
	}
	p.Log.Info("execution finished",
		zap.String("requestId", reqID),
		zap.String("paymentId", payID),
		zap.String("outcome", string(outcome)),
	)
}

func (p *Processor) toDLQ(ctx context.Context, key, value []byte, stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
	if p.DLQ == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.DLQ.WriteMessages(wctx, kafka.Message{Key: key, Value: value}); err != nil {
		p.Log.Error("dlq write failed", zap.Error(err))
	}
}

// excerpt limita o trecho bruto persistido do corpo da notificação
func excerpt(s string) string {
	r := []rune(s)
	if len(r) > 300 {
		return string(r[:300])
	}
	return s
}
