package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// memTokens é o TokenStore em memória dos testes; TTL é ignorado de propósito
type memTokens struct {
	mu sync.Mutex
	m  map[string]Session
}

func newMemTokens() *memTokens { return &memTokens{m: map[string]Session{}} }

func (s *memTokens) Get(_ context.Context, key string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[key]
	return sess, ok, nil
}

func (s *memTokens) Set(_ context.Context, key string, sess Session, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = sess
	return nil
}

func (s *memTokens) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// loginServer simula a plataforma stateful: /auth/login emite tokens
// sequenciais e o caixa rejeita com 401 os primeiros rejectFirst pedidos.
type loginServer struct {
	logins      atomic.Int64
	calls       atomic.Int64
	rejectFirst int64
	srv         *httptest.Server
}

func newLoginServer() *loginServer {
	ls := &loginServer{}
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			n := ls.logins.Add(1)
			_ = json.NewEncoder(w).Encode(Session{
				Token:     fmt.Sprintf("tok-%d", n),
				SessionID: fmt.Sprintf("sid-%d", n),
			})
		default:
			n := ls.calls.Add(1)
			if r.Header.Get("Authorization") == "" || r.Header.Get("X-Session-Id") == "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			if n <= ls.rejectFirst {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"success":true}`))
		}
	}))
	return ls
}

func newSessionLogin(t *testing.T, ls *loginServer) *SessionLogin {
	t.Helper()
	creds := Credentials{Platform: PlatformStavkaclub, BaseURL: ls.srv.URL,
		Login: "cashier7", Password: "pw"}
	sl, err := NewSessionLogin(PlatformStavkaclub, creds, ls.srv.Client(), newMemTokens(), 20*time.Minute)
	if err != nil {
		t.Fatalf("new sessionlogin: %v", err)
	}
	return sl
}

func TestSessionLoginReusesCachedSession(t *testing.T) {
	ls := newLoginServer()
	defer ls.srv.Close()
	sl := newSessionLogin(t, ls)

	for i := 0; i < 3; i++ {
		if _, err := sl.Deposit(context.Background(), "IVAN99", 1000); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}
	if got := ls.logins.Load(); got != 1 {
		t.Fatalf("logins = %d, want 1 (sessão deveria ser reaproveitada)", got)
	}
	if got := ls.calls.Load(); got != 3 {
		t.Fatalf("chamadas de caixa = %d, want 3", got)
	}
}

func TestSessionLoginExactlyOneReloginOn401(t *testing.T) {
	ls := newLoginServer()
	defer ls.srv.Close()
	ls.rejectFirst = 1
	sl := newSessionLogin(t, ls)

	res, err := sl.Deposit(context.Background(), "IVAN99", 1000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !res.Success {
		t.Fatalf("result: %+v", res)
	}
	if got := ls.logins.Load(); got != 2 {
		t.Fatalf("logins = %d, want 2 (inicial + um re-login)", got)
	}
	if got := ls.calls.Load(); got != 2 {
		t.Fatalf("chamadas de caixa = %d, want 2 (original + uma re-tentativa)", got)
	}
}

func TestSessionLoginNeverLoopsOnPersistent401(t *testing.T) {
	ls := newLoginServer()
	defer ls.srv.Close()
	ls.rejectFirst = 1000
	sl := newSessionLogin(t, ls)

	if _, err := sl.Deposit(context.Background(), "IVAN99", 1000); err == nil {
		t.Fatal("401 persistente deveria falhar")
	}
	if got := ls.calls.Load(); got != 2 {
		t.Fatalf("chamadas de caixa = %d, want 2 (nunca laço de re-login)", got)
	}
	if got := ls.logins.Load(); got != 2 {
		t.Fatalf("logins = %d, want 2", got)
	}
}

func TestSessionLoginSingleFlightColdCache(t *testing.T) {
	ls := newLoginServer()
	defer ls.srv.Close()
	sl := newSessionLogin(t, ls)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sl.Deposit(context.Background(), "IVAN99", 1000); err != nil {
				t.Errorf("deposit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := ls.logins.Load(); got != 1 {
		t.Fatalf("logins concorrentes = %d, want 1 (single-flight)", got)
	}
	if got := ls.calls.Load(); got != 8 {
		t.Fatalf("chamadas de caixa = %d, want 8", got)
	}
}

func TestSessionLoginCacheKeyPerCredential(t *testing.T) {
	ls := newLoginServer()
	defer ls.srv.Close()
	creds := Credentials{Platform: PlatformStavkaclub, BaseURL: ls.srv.URL,
		Login: "cashier7", Password: "pw"}
	sl, err := NewSessionLogin(PlatformStavkaclub, creds, ls.srv.Client(), newMemTokens(), time.Minute)
	if err != nil {
		t.Fatalf("new sessionlogin: %v", err)
	}
	if got := sl.cacheKey(); got != "gwsession:stavkaclub:cashier7" {
		t.Fatalf("cache key = %q", got)
	}
}
