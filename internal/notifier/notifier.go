package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/pkg/contracts/events"
)

// Notifier consome eventos request_settled e entrega a notificação de saída
// (webhook). Roda fora da transação que move dinheiro: falha aqui vai para a
// DLQ e nunca desfaz nem bloqueia a liquidação.
type Notifier struct {
	Log        *zap.Logger
	Reader     *kafka.Reader
	WebhookURL string // vazio: só loga o evento
	HTTP       *http.Client
	DLQ        *kafka.Writer // opcional

	OnDelivered func()
	OnError     func(string)
}

// Run inicia o loop de consumo até o contexto ser cancelado
func (n *Notifier) Run(ctx context.Context) error {
	for {
		m, err := n.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.Log.Warn("kafka read failed", zap.Error(err))
			if n.OnError != nil {
				n.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		var ev events.RequestSettled
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			n.Log.Warn("invalid settled event", zap.Error(err))
			n.toDLQ(m.Key, m.Value, "decode")
			continue
		}

		if err := n.deliver(ctx, &ev, m.Value); err != nil {
			n.Log.Warn("webhook delivery failed",
				zap.String("requestId", ev.RequestID), zap.Error(err))
			n.toDLQ(m.Key, m.Value, "deliver")
			continue
		}
		if n.OnDelivered != nil {
			n.OnDelivered()
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev *events.RequestSettled, raw []byte) error {
	n.Log.Info("request settled",
		zap.String("requestId", ev.RequestID),
		zap.String("status", ev.Status),
		zap.Int64("amountCents", ev.AmountCents),
	)
	if n.WebhookURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("webhook http " + resp.Status)
	}
	return nil
}

func (n *Notifier) toDLQ(key, value []byte, stage string) {
	if n.OnError != nil {
		n.OnError(stage)
	}
	if n.DLQ == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.DLQ.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		n.Log.Error("dlq write failed", zap.Error(err))
	}
}
