package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/platform-simulator/sim"
	"github.com/radieske/payment-recon-poc/internal/shared/config"
	"github.com/radieske/payment-recon-poc/internal/shared/logger"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func main() {
	cfg := config.Load()
	log, err := logger.New("platform-simulator", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Credenciais padrão do docker-compose de desenvolvimento
	simCfg := sim.Config{
		CashdeskID:  env("SIM_CASHDESK_ID", "1177"),
		CashierPass: env("SIM_CASHIER_PASS", "devpass"),
		SharedHash:  env("SIM_SHARED_HASH", "devhash"),
		BasicUser:   env("SIM_BASIC_USER", "cashier"),
		BasicPass:   env("SIM_BASIC_PASS", "cashierpw"),
		APIKey:      env("SIM_API_KEY", "dev-api-key"),
		SecretKey:   env("SIM_SECRET_KEY", "dev-secret"),
		Login:       env("SIM_LOGIN", "cashier7"),
		Password:    env("SIM_PASSWORD", "devpw"),
		RejectRate:  envFloat("SIM_REJECT_RATE", 0),
		LimitRate:   envFloat("SIM_LIMIT_RATE", 0),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := sim.New(log, simCfg)

	r := chi.NewRouter()
	r.Mount("/", s.Router())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              ":" + env("SIM_HTTP_PORT", "8090"),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("platform simulator listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("sim srv", zap.Error(err))
	}
}
