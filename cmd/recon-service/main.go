package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/gateway"
	"github.com/radieske/payment-recon-poc/internal/recon-service/executor"
	rhttp "github.com/radieske/payment-recon-poc/internal/recon-service/http"
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

	// Inicializa logger estruturado
	log, err := logger.New("recon-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "recon-service"), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conexão com Postgres (fonte única de verdade)
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis para o cache de sessão dos gateways stateful
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Producer do evento pós-liquidação
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRequestSettled)
	defer settledWriter.Close()

	// Métricas Prometheus de execução
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "recon_exec_outcomes_total", Help: "desfechos do coordenador"}, []string{"outcome"})
	faults := prometheus.NewCounter(prometheus.CounterOpts{Name: "recon_consistency_faults_total", Help: "inconsistências locais após correção"})
	prometheus.MustRegister(outcomes, faults)

	// Monta o núcleo: repo -> facade de gateways -> coordenador
	repo := rrepo.NewPostgres(pg)
	facade := gateway.NewFacade(log, gateway.NewResolver(pg), cfg.GatewayTimeout,
		gateway.NewRedisTokenStore(redisClient), cfg.SessionTokenTTL)
	exec := &executor.Executor{
		Log:          log,
		Store:        repo,
		Gateway:      facade,
		Publisher:    producer.NewKafkaPublisher(settledWriter),
		EpsilonCents: cfg.MatchEpsilonCents,
		OnOutcome:    func(o string) { outcomes.WithLabelValues(o).Inc() },
		OnFault:      func() { faults.Inc() },
	}

	api := rhttp.NewServer(log, repo, exec)
	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	// Servidor de métricas e health check
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		hctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.PingContext(hctx); err != nil {
			http.Error(w, "pg", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(hctx).Err(); err != nil {
			http.Error(w, "redis", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux}

	go func() {
		log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics srv", zap.Error(err))
		}
	}()

	// Encerramento gracioso da API no cancelamento
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = apiSrv.Shutdown(sctx)
		_ = metricsSrv.Shutdown(sctx)
	}()

	log.Info("api listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api srv", zap.Error(err))
	}
}
