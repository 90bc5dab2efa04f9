package matcher

import (
	"context"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/payment-recon-poc/internal/recon-service/repo"
)

type fakeStore struct {
	payments map[string]*repo.Payment
	requests []repo.Request
}

func (f *fakeStore) GetPayment(_ context.Context, id string) (*repo.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListPendingDeposits(_ context.Context, since time.Time) ([]repo.Request, error) {
	var out []repo.Request
	for _, r := range f.requests {
		if r.Kind == repo.KindDeposit && r.Status == repo.StatusPending && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func newMatcher(s Store) *Matcher {
	return &Matcher{
		Log:          zap.NewNop(),
		Store:        s,
		Lookback:     24 * time.Hour,
		MaxLag:       time.Hour,
		EpsilonCents: 0,
	}
}

func pendingDeposit(id string, cents int64, createdAt time.Time) repo.Request {
	return repo.Request{
		ID:          id,
		UserID:      "u1",
		Platform:    "playhall",
		AmountCents: cents,
		Kind:        repo.KindDeposit,
		Status:      repo.StatusPending,
		CreatedAt:   createdAt,
	}
}

func payment(id string, cents int64, occurredAt time.Time) *repo.Payment {
	return &repo.Payment{ID: id, AmountCents: cents, Bank: "sberbank", OccurredAt: occurredAt}
}

// Cenário A: pagamento 30s após a criação da solicitação de mesmo valor casa
func TestMatchSimple(t *testing.T) {
	t0 := time.Now().Add(-10 * time.Minute)
	s := &fakeStore{
		payments: map[string]*repo.Payment{"p1": payment("p1", 50000, t0.Add(30*time.Second))},
		requests: []repo.Request{pendingDeposit("r1", 50000, t0)},
	}
	got, err := newMatcher(s).OnNewPayment(context.Background(), "p1")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != "r1" {
		t.Fatalf("matched %q, want r1", got)
	}
}

// Cenário B: pagamento liquidado antes da solicitação existir não casa
func TestNoMatchPaymentSettledBeforeRequest(t *testing.T) {
	t0 := time.Now().Add(-10 * time.Minute)
	s := &fakeStore{
		payments: map[string]*repo.Payment{"p1": payment("p1", 50000, t0.Add(-10*time.Second))},
		requests: []repo.Request{pendingDeposit("r1", 50000, t0)},
	}
	got, err := newMatcher(s).OnNewPayment(context.Background(), "p1")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != "" {
		t.Fatalf("esperava nenhum casamento, veio %q", got)
	}
}

// Cenário C: duas solicitações de mesmo valor; a mais antiga vence (FIFO)
func TestMatchOldestWins(t *testing.T) {
	t0 := time.Now().Add(-10 * time.Minute)
	s := &fakeStore{
		payments: map[string]*repo.Payment{"p1": payment("p1", 50000, t0.Add(30*time.Second))},
		requests: []repo.Request{
			pendingDeposit("r2", 50000, t0.Add(5*time.Second)),
			pendingDeposit("r1", 50000, t0),
		},
	}
	got, err := newMatcher(s).OnNewPayment(context.Background(), "p1")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if got != "r1" {
		t.Fatalf("matched %q, want r1 (mais antiga)", got)
	}
}

func TestNoMatchAmountDiffers(t *testing.T) {
	t0 := time.Now().Add(-10 * time.Minute)
	s := &fakeStore{
		payments: map[string]*repo.Payment{"p1": payment("p1", 50001, t0.Add(time.Minute))},
		requests: []repo.Request{pendingDeposit("r1", 50000, t0)},
	}
	got, _ := newMatcher(s).OnNewPayment(context.Background(), "p1")
	if got != "" {
		t.Fatalf("valor diferente não pode casar, veio %q", got)
	}
}

func TestMatchWithinEpsilon(t *testing.T) {
	t0 := time.Now().Add(-10 * time.Minute)
	s := &fakeStore{
		payments: map[string]*repo.Payment{"p1": payment("p1", 50001, t0.Add(time.Minute))},
		requests: []repo.Request{pendingDeposit("r1", 50000, t0)},
	}
	m := newMatcher(s)
	m.EpsilonCents = 1
	got, _ := m.OnNewPayment(context.Background(), "p1")
	if got != "r1" {
		t.Fatalf("dentro do epsilon deveria casar, veio %q", got)
	}
}

func TestNoMatchBeyondMaxLag(t *testing.T) {
	t0 := time.Now().Add(-3 * time.Hour)
	s := &fakeStore{
		// solicitação dentro do lookback, mas liquidação 2h depois da criação
		payments: map[string]*repo.Payment{"p1": payment("p1", 50000, t0.Add(2*time.Hour))},
		requests: []repo.Request{pendingDeposit("r1", 50000, t0)},
	}
	got, _ := newMatcher(s).OnNewPayment(context.Background(), "p1")
	if got != "" {
		t.Fatalf("fora do atraso máximo não casa, veio %q", got)
	}
}

func TestProcessedPaymentIsNoop(t *testing.T) {
	t0 := time.Now().Add(-10 * time.Minute)
	p := payment("p1", 50000, t0.Add(time.Minute))
	p.IsProcessed = true
	s := &fakeStore{
		payments: map[string]*repo.Payment{"p1": p},
		requests: []repo.Request{pendingDeposit("r1", 50000, t0)},
	}
	got, err := newMatcher(s).OnNewPayment(context.Background(), "p1")
	if err != nil || got != "" {
		t.Fatalf("pagamento processado é no-op, veio (%q, %v)", got, err)
	}
}
