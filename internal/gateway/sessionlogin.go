package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Session é o material obtido no login da família stateful: token bearer e
// id de sessão, cacheados com TTL por identidade de credencial.
type Session struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

// TokenStore guarda sessões por chave de credencial. A implementação padrão
// usa Redis (RedisTokenStore); testes usam memória.
type TokenStore interface {
	Get(ctx context.Context, key string) (Session, bool, error)
	Set(ctx context.Context, key string, s Session, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// SessionLogin implementa a família com login multi-etapa. O mutex serializa
// o login (single-flight): chamadas concorrentes com cache frio disparam uma
// única autenticação. Um 401 invalida o cache e dispara exatamente um
// re-login seguido de uma re-tentativa, nunca um laço.
type SessionLogin struct {
	Platform string
	Creds    Credentials
	HTTP     *http.Client
	Tokens   TokenStore
	TTL      time.Duration

	mu sync.Mutex
}

func NewSessionLogin(platform string, creds Credentials, client *http.Client, tokens TokenStore, ttl time.Duration) (*SessionLogin, error) {
	err := creds.require(map[string]string{
		"login":    creds.Login,
		"password": creds.Password,
	})
	if err != nil {
		return nil, err
	}
	return &SessionLogin{Platform: platform, Creds: creds, HTTP: client, Tokens: tokens, TTL: ttl}, nil
}

// cacheKey identifica a credencial, não a plataforma sozinha: dois caixas com
// logins distintos na mesma plataforma não compartilham sessão
func (s *SessionLogin) cacheKey() string {
	return "gwsession:" + s.Platform + ":" + s.Creds.Login
}

// session retorna a sessão cacheada ou faz login. Chamadas concorrentes
// esperam no mutex e encontram o cache já quente.
func (s *SessionLogin) session(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok, err := s.Tokens.Get(ctx, s.cacheKey()); err == nil && ok {
		return sess, nil
	}
	return s.loginLocked(ctx)
}

// loginLocked executa o fluxo de autenticação; exige mu já adquirido.
func (s *SessionLogin) loginLocked(ctx context.Context) (Session, error) {
	body, _ := json.Marshal(map[string]string{
		"login":    s.Creds.Login,
		"password": s.Creds.Password,
	})
	req, err := newJSONRequest(ctx, http.MethodPost, s.Creds.BaseURL+"/auth/login", body)
	if err != nil {
		return Session{}, &RejectedError{Msg: err.Error()}
	}
	raw, _, err := doJSON(s.HTTP, req)
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.Token == "" {
		return Session{}, &RejectedError{Msg: "login sem token: " + excerpt(raw)}
	}
	if err := s.Tokens.Set(ctx, s.cacheKey(), sess, s.TTL); err != nil {
		// cache indisponível não impede a chamada; a sessão vale para esta
		return sess, nil
	}
	return sess, nil
}

// relogin descarta a sessão inválida e autentica de novo (uma vez).
func (s *SessionLogin) relogin(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.Tokens.Del(ctx, s.cacheKey())
	return s.loginLocked(ctx)
}

func (s *SessionLogin) post(ctx context.Context, path string, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &RejectedError{Msg: "payload: " + err.Error()}
	}

	sess, err := s.session(ctx)
	if err != nil {
		return Result{}, err
	}

	raw, status, err := s.doAuthed(ctx, path, body, sess)
	if status == http.StatusUnauthorized {
		// sessão expirou no lado remoto: um re-login, uma re-tentativa
		sess, err = s.relogin(ctx)
		if err != nil {
			return Result{}, err
		}
		raw, _, err = s.doAuthed(ctx, path, body, sess)
	}
	if err != nil {
		return Result{}, err
	}
	return decodeResult(raw)
}

func (s *SessionLogin) doAuthed(ctx context.Context, path string, body []byte, sess Session) ([]byte, int, error) {
	req, err := newJSONRequest(ctx, http.MethodPost, s.Creds.BaseURL+path, body)
	if err != nil {
		return nil, 0, &RejectedError{Msg: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	req.Header.Set("X-Session-Id", sess.SessionID)
	return doJSON(s.HTTP, req)
}

func (s *SessionLogin) Deposit(ctx context.Context, accountRef string, amountCents int64) (Result, error) {
	return s.post(ctx, "/cashier/deposit", map[string]any{
		"account": accountRef,
		"amount":  FormatAmount(amountCents),
	})
}

func (s *SessionLogin) VerifyAndExecute(ctx context.Context, accountRef, code string) (Result, error) {
	return s.post(ctx, "/cashier/payout/confirm", map[string]any{
		"account": accountRef,
		"code":    code,
	})
}
