package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	rrepo "github.com/radieske/payment-recon-poc/internal/recon-service/repo"
	"github.com/radieske/payment-recon-poc/internal/recon-service/sweep"
	"github.com/radieske/payment-recon-poc/internal/shared/config"
	"github.com/radieske/payment-recon-poc/internal/shared/db"
	"github.com/radieske/payment-recon-poc/internal/shared/logger"
	"github.com/radieske/payment-recon-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("sweep-worker", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	expired := prometheus.NewCounter(prometheus.CounterOpts{Name: "sweep_requests_expired_total", Help: "depósitos expirados pela varredura"})
	prometheus.MustRegister(expired)

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(hctx context.Context) error {
		return pg.PingContext(hctx)
	})

	sw := &sweep.Sweeper{
		Log:       log,
		Store:     rrepo.NewPostgres(pg),
		Interval:  cfg.SweepInterval,
		Expiry:    cfg.RequestExpiry,
		OnExpired: func(n int64) { expired.Add(float64(n)) },
	}

	log.Info("sweep-worker started",
		zap.Duration("interval", cfg.SweepInterval),
		zap.Duration("expiry", cfg.RequestExpiry),
	)

	if err := sw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("sweeper stopped", zap.Error(err))
	}
	_ = metricsSrv.Close()
	log.Info("sweep-worker stopped")
}
