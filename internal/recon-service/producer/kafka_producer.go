package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/payment-recon-poc/pkg/contracts/events"
)

type KafkaPublisher struct {
	Writer *kafka.Writer
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

// PublishSettled publica o evento pós-commit; chave = requestID mantém a
// ordem por solicitação na partição
func (p *KafkaPublisher) PublishSettled(ctx context.Context, e events.RequestSettled) error {
	b, _ := json.Marshal(e)
	return p.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.RequestID), Value: b})
}
