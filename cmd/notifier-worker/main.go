package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/notifier"
	"github.com/radieske/payment-recon-poc/internal/shared/config"
	"github.com/radieske/payment-recon-poc/internal/shared/kafka"
	"github.com/radieske/payment-recon-poc/internal/shared/logger"
	"github.com/radieske/payment-recon-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("notifier-worker", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRequestSettled, "notifier")
	defer reader.Close()

	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRequestSettledDLQ)
	defer dlqWriter.Close()

	delivered := prometheus.NewCounter(prometheus.CounterOpts{Name: "notifier_webhooks_delivered_total", Help: "webhooks entregues"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notifier_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(delivered, errorsBy)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(context.Context) error { return nil })

	n := &notifier.Notifier{
		Log:         log,
		Reader:      reader,
		WebhookURL:  cfg.NotifyWebhookURL,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		DLQ:         dlqWriter,
		OnDelivered: func() { delivered.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	log.Info("notifier-worker started",
		zap.String("consume", cfg.TopicRequestSettled),
		zap.String("webhook", cfg.NotifyWebhookURL),
	)

	if err := n.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("notifier stopped", zap.Error(err))
	}
	_ = metricsSrv.Close()
	log.Info("notifier-worker stopped")
}
