package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/shared/config"
	"github.com/radieske/payment-recon-poc/internal/shared/logger"
)

// Borda única para a interface do operador: encaminha a API de solicitações
// para o recon-service e aplica CORS para o front servido em outro domínio.

func rp(to string) *httputil.ReverseProxy {
	u, _ := url.Parse(to)
	return httputil.NewSingleHostReverseProxy(u)
}

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	reconURL := os.Getenv("RECON_URL")
	if reconURL == "" {
		reconURL = "http://localhost:8084"
	}
	recon := rp(reconURL)

	mux := http.NewServeMux()

	// back office (ex.: /api/recon/v1/requests -> recon-service /v1/requests)
	mux.Handle("/api/recon/", http.StripPrefix("/api/recon", recon))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := ":" + cfg.HTTPPort
	srv := &http.Server{
		Addr:              addr,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("api-gateway listening", zap.String("addr", addr), zap.String("recon", reconURL))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
