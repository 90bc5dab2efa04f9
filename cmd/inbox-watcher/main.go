package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/gateway"
	"github.com/radieske/payment-recon-poc/internal/inbox-watcher/consumer"
	"github.com/radieske/payment-recon-poc/internal/recon-service/executor"
	"github.com/radieske/payment-recon-poc/internal/recon-service/matcher"
	"github.com/radieske/payment-recon-poc/internal/recon-service/producer"
	rrepo "github.com/radieske/payment-recon-poc/internal/recon-service/repo"
	sharedcache "github.com/radieske/payment-recon-poc/internal/shared/cache"
	"github.com/radieske/payment-recon-poc/internal/shared/config"
	"github.com/radieske/payment-recon-poc/internal/shared/db"
	"github.com/radieske/payment-recon-poc/internal/shared/kafka"
	"github.com/radieske/payment-recon-poc/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("inbox-watcher", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Dependências: Postgres, Redis (sessões de gateway) e Kafka
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Consumer das notificações bancárias brutas (consumer group inbox-watcher)
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBankNotifications, "inbox-watcher")
	defer reader.Close()

	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBankNotificationsDLQ)
	defer dlqWriter.Close()

	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRequestSettled)
	defer settledWriter.Close()

	// Métricas Prometheus por etapa do pipeline
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "inbox_messages_consumed_total", Help: "mensagens consumidas"})
	parsed := prometheus.NewCounter(prometheus.CounterOpts{Name: "inbox_notifications_parsed_total", Help: "notificações decodificadas"})
	matched := prometheus.NewCounter(prometheus.CounterOpts{Name: "inbox_payments_matched_total", Help: "pagamentos casados com solicitação"})
	noMatch := prometheus.NewCounter(prometheus.CounterOpts{Name: "inbox_payments_unmatched_total", Help: "pagamentos sem candidata"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "inbox_errors_total", Help: "erros por estágio"}, []string{"stage"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "recon_exec_outcomes_total", Help: "desfechos do coordenador"}, []string{"outcome"})
	faults := prometheus.NewCounter(prometheus.CounterOpts{Name: "recon_consistency_faults_total", Help: "inconsistências locais após correção"})
	prometheus.MustRegister(consumed, parsed, matched, noMatch, errorsBy, outcomes, faults)

	// Núcleo compartilhado com o recon-service: mesmo repo, mesmo coordenador
	repo := rrepo.NewPostgres(pg)
	facade := gateway.NewFacade(log, gateway.NewResolver(pg), cfg.GatewayTimeout,
		gateway.NewRedisTokenStore(redisClient), cfg.SessionTokenTTL)

	match := &matcher.Matcher{
		Log:          log,
		Store:        repo,
		Lookback:     cfg.MatchLookback,
		MaxLag:       cfg.MatchMaxLag,
		EpsilonCents: cfg.MatchEpsilonCents,
		OnMatched:    func() { matched.Inc() },
		OnNoMatch:    func() { noMatch.Inc() },
	}
	exec := &executor.Executor{
		Log:          log,
		Store:        repo,
		Gateway:      facade,
		Publisher:    producer.NewKafkaPublisher(settledWriter),
		EpsilonCents: cfg.MatchEpsilonCents,
		OnOutcome:    func(o string) { outcomes.WithLabelValues(o).Inc() },
		OnFault:      func() { faults.Inc() },
	}

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Store:      repo,
		Matcher:    match,
		Executor:   exec,
		DLQ:        dlqWriter,
		OnConsumed: func() { consumed.Inc() },
		OnParsed:   func() { parsed.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			hctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
			defer cancel()
			if err := pg.PingContext(hctx); err != nil {
				http.Error(w, "pg", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		metricsSrv.Handler = mux
		log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))
		_ = metricsSrv.ListenAndServe()
	}()

	log.Info("inbox-watcher started",
		zap.String("consume", cfg.TopicBankNotifications),
		zap.String("dlq", cfg.TopicBankNotificationsDLQ),
	)

	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("processor stopped", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(sctx)
	log.Info("inbox-watcher stopped")
}
