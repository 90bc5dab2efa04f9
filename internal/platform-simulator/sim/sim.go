package sim

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Métricas do simulador: volume por família e desfecho
var simRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "sim_requests_total",
	Help: "Requisições recebidas pelo simulador de plataformas",
}, []string{"family", "outcome"})

func init() {
	prometheus.MustRegister(simRequests)
}

// Config reúne as credenciais que o simulador aceita, uma por família.
// Os valores padrão casam com o docker-compose de desenvolvimento.
type Config struct {
	CashdeskID  string
	CashierPass string
	SharedHash  string
	BasicUser   string
	BasicPass   string

	APIKey    string
	SecretKey string

	Login    string
	Password string

	SessionTTL time.Duration

	// Injeção de falha para exercitar os caminhos de recusa e limite do
	// cliente: fração de respostas aleatórias por tipo
	RejectRate float64
	LimitRate  float64
}

// Simulator sobe, num processo só, o lado servidor das quatro famílias de
// assinatura. Serve para desenvolvimento local: valida assinaturas de verdade,
// então um cliente que passa aqui passa na plataforma real.
type Simulator struct {
	Log *zap.Logger
	Cfg Config

	mu       sync.Mutex
	sessions map[string]time.Time // token -> validade
	rnd      *rand.Rand
}

func New(log *zap.Logger, cfg Config) *Simulator {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 20 * time.Minute
	}
	return &Simulator{
		Log:      log,
		Cfg:      cfg,
		sessions: make(map[string]time.Time),
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulator) Router() chi.Router {
	r := chi.NewRouter()

	// Família cashdesk (hash duplo)
	r.Post("/Deposit/{ref}", s.cashdeskDeposit)
	r.Post("/Payout/{ref}", s.cashdeskPayout)

	// Família assinada por timestamp
	r.Post("/api/v1/deposit", s.signedDeposit)
	r.Post("/api/v1/payout/confirm", s.signedPayout)

	// Família api-key
	r.Post("/v1/deposit", s.apiKeyDeposit)
	r.Post("/v1/payout/confirm", s.apiKeyPayout)

	// Família login de sessão
	r.Post("/auth/login", s.login)
	r.Post("/cashier/deposit", s.sessionDeposit)
	r.Post("/cashier/payout/confirm", s.sessionPayout)

	return r
}

func md5hex(v string) string {
	sum := md5.Sum([]byte(v))
	return hex.EncodeToString(sum[:])
}

func sha256hex(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// maybeInject decide se esta resposta vira falha artificial
func (s *Simulator) maybeInject(w http.ResponseWriter, family string) bool {
	s.mu.Lock()
	roll := s.rnd.Float64()
	s.mu.Unlock()

	switch {
	case roll < s.Cfg.LimitRate:
		simRequests.WithLabelValues(family, "rate_limited").Inc()
		w.WriteHeader(http.StatusTooManyRequests)
		writeJSON(w, map[string]any{"success": false, "message": "too many requests"})
		return true
	case roll < s.Cfg.LimitRate+s.Cfg.RejectRate:
		simRequests.WithLabelValues(family, "rejected").Inc()
		writeJSON(w, map[string]any{"success": false, "error": "rejeitado pelo simulador"})
		return true
	}
	return false
}

func (s *Simulator) deny(w http.ResponseWriter, family, msg string) {
	simRequests.WithLabelValues(family, "denied").Inc()
	s.Log.Warn("sim denied request", zap.String("family", family), zap.String("reason", msg))
	w.WriteHeader(http.StatusBadRequest)
	writeJSON(w, map[string]any{"success": false, "error": msg})
}

func (s *Simulator) ok(w http.ResponseWriter, family string, body map[string]any) {
	simRequests.WithLabelValues(family, "success").Inc()
	body["success"] = true
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ---- família cashdesk ----

type cashdeskBody struct {
	CashdeskID string `json:"cashdeskId"`
	Lng        string `json:"lng"`
	Summa      string `json:"summa"`
	Code       string `json:"code"`
	Confirm    string `json:"confirm"`
}

// basicOK valida o basic auth quando o cliente o envia; as plataformas da
// família que não exigem basic simplesmente não mandam o header
func (s *Simulator) basicOK(r *http.Request) bool {
	user, pass, sent := r.BasicAuth()
	if !sent {
		return true
	}
	return user == s.Cfg.BasicUser && pass == s.Cfg.BasicPass
}

// confirmValid aceita o token com o ref original ou em minúsculas: o mesmo
// simulador atende as variações das quatro plataformas
func (s *Simulator) confirmValid(ref, confirm string) bool {
	return confirm == md5hex(ref+":"+s.Cfg.SharedHash) ||
		confirm == md5hex(strings.ToLower(ref)+":"+s.Cfg.SharedHash)
}

func (s *Simulator) cashdeskSign(ref, opBlock string) string {
	inner1 := md5hex("hash=" + s.Cfg.SharedHash + "&lng=ru&userid=" + ref)
	inner2 := md5hex(opBlock + "&cashierpass=" + s.Cfg.CashierPass + "&cashdeskid=" + s.Cfg.CashdeskID)
	return sha256hex(inner1 + inner2)
}

func (s *Simulator) cashdeskDeposit(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if !s.basicOK(r) {
		s.deny(w, "cashdesk", "basic auth inválido")
		return
	}
	var b cashdeskBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		s.deny(w, "cashdesk", "corpo inválido")
		return
	}
	if r.Header.Get("sign") != s.cashdeskSign(ref, "summa="+b.Summa) {
		s.deny(w, "cashdesk", "assinatura inválida")
		return
	}
	if !s.confirmValid(ref, b.Confirm) {
		s.deny(w, "cashdesk", "confirm inválido")
		return
	}
	if s.maybeInject(w, "cashdesk") {
		return
	}
	s.ok(w, "cashdesk", map[string]any{"summa": b.Summa, "message": "deposited"})
}

func (s *Simulator) cashdeskPayout(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	if !s.basicOK(r) {
		s.deny(w, "cashdesk", "basic auth inválido")
		return
	}
	var b cashdeskBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		s.deny(w, "cashdesk", "corpo inválido")
		return
	}
	if r.Header.Get("sign") != s.cashdeskSign(ref, "code="+b.Code) {
		s.deny(w, "cashdesk", "assinatura inválida")
		return
	}
	if !s.confirmValid(ref, b.Confirm) {
		s.deny(w, "cashdesk", "confirm inválido")
		return
	}
	if s.maybeInject(w, "cashdesk") {
		return
	}
	s.ok(w, "cashdesk", map[string]any{"message": "paid"})
}

// ---- família assinada por timestamp ----

const signTimeLayout = "2006.01.02 15:04:05"

func (s *Simulator) checkSigned(r *http.Request, path string, body []byte) string {
	if r.Header.Get("X-Api-Key") != s.Cfg.APIKey {
		return "api key inválida"
	}
	ts := r.Header.Get("X-Timestamp")
	at, err := time.Parse(signTimeLayout, ts)
	if err != nil {
		return "timestamp ilegível"
	}
	if d := time.Since(at.UTC()); d > 5*time.Minute || d < -5*time.Minute {
		return "timestamp fora da janela"
	}
	mac := hmac.New(sha256.New, []byte(s.Cfg.SecretKey))
	mac.Write([]byte(s.Cfg.APIKey))
	mac.Write([]byte(path))
	mac.Write(body)
	mac.Write([]byte(ts))
	if r.Header.Get("X-Sign") != hex.EncodeToString(mac.Sum(nil)) {
		return "assinatura inválida"
	}
	return ""
}

func (s *Simulator) signedDeposit(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if msg := s.checkSigned(r, "/api/v1/deposit", body); msg != "" {
		s.deny(w, "signed", msg)
		return
	}
	if s.maybeInject(w, "signed") {
		return
	}
	var p struct {
		Amount string `json:"amount"`
	}
	_ = json.Unmarshal(body, &p)
	s.ok(w, "signed", map[string]any{"amount": p.Amount})
}

func (s *Simulator) signedPayout(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if msg := s.checkSigned(r, "/api/v1/payout/confirm", body); msg != "" {
		s.deny(w, "signed", msg)
		return
	}
	if s.maybeInject(w, "signed") {
		return
	}
	s.ok(w, "signed", map[string]any{"message": "paid"})
}

// ---- família api-key ----

func (s *Simulator) apiKeyGuard(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("X-Api-Key") != s.Cfg.APIKey {
		s.deny(w, "apikey", "api key inválida")
		return false
	}
	return true
}

func (s *Simulator) apiKeyDeposit(w http.ResponseWriter, r *http.Request) {
	if !s.apiKeyGuard(w, r) {
		return
	}
	if s.maybeInject(w, "apikey") {
		return
	}
	var p struct {
		AmountCents int64 `json:"amount_cents"`
	}
	_ = json.NewDecoder(r.Body).Decode(&p)
	s.ok(w, "apikey", map[string]any{"amount": float64(p.AmountCents) / 100})
}

func (s *Simulator) apiKeyPayout(w http.ResponseWriter, r *http.Request) {
	if !s.apiKeyGuard(w, r) {
		return
	}
	if s.maybeInject(w, "apikey") {
		return
	}
	s.ok(w, "apikey", map[string]any{"message": "paid"})
}

// ---- família login de sessão ----

func (s *Simulator) login(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil ||
		p.Login != s.Cfg.Login || p.Password != s.Cfg.Password {
		s.deny(w, "session", "credenciais inválidas")
		return
	}
	tok := uuid.NewString()
	s.mu.Lock()
	s.sessions[tok] = time.Now().Add(s.Cfg.SessionTTL)
	s.mu.Unlock()

	simRequests.WithLabelValues("session", "login").Inc()
	writeJSON(w, map[string]any{"token": tok, "session_id": uuid.NewString()})
}

// sessionGuard valida o bearer; sessão desconhecida ou vencida devolve 401,
// que é o gatilho do re-login único no cliente
func (s *Simulator) sessionGuard(w http.ResponseWriter, r *http.Request) bool {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	exp, ok := s.sessions[tok]
	if ok && time.Now().After(exp) {
		delete(s.sessions, tok)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		simRequests.WithLabelValues("session", "unauthorized").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Simulator) sessionDeposit(w http.ResponseWriter, r *http.Request) {
	if !s.sessionGuard(w, r) {
		return
	}
	if s.maybeInject(w, "session") {
		return
	}
	var p struct {
		Amount string `json:"amount"`
	}
	_ = json.NewDecoder(r.Body).Decode(&p)
	s.ok(w, "session", map[string]any{"amount": p.Amount})
}

func (s *Simulator) sessionPayout(w http.ResponseWriter, r *http.Request) {
	if !s.sessionGuard(w, r) {
		return
	}
	if s.maybeInject(w, "session") {
		return
	}
	s.ok(w, "session", map[string]any{"message": "paid"})
}
