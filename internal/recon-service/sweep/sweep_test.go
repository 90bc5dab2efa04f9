package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStore struct {
	gotCutoff time.Time
	n         int64
	err       error
}

func (f *fakeStore) ExpireStale(_ context.Context, olderThan time.Time) (int64, error) {
	f.gotCutoff = olderThan
	return f.n, f.err
}

func TestSweepOnceUsesExpiryCutoff(t *testing.T) {
	store := &fakeStore{n: 3}
	var expired int64
	s := &Sweeper{
		Log: zap.NewNop(), Store: store,
		Interval: time.Minute, Expiry: 48 * time.Hour,
		OnExpired: func(n int64) { expired = n },
	}

	before := time.Now().Add(-48 * time.Hour)
	s.sweepOnce(context.Background())
	after := time.Now().Add(-48 * time.Hour)

	if store.gotCutoff.Before(before) || store.gotCutoff.After(after) {
		t.Fatalf("corte = %v, esperado ~%v", store.gotCutoff, before)
	}
	if expired != 3 {
		t.Fatalf("OnExpired = %d, want 3", expired)
	}
}

func TestSweepOnceSwallowsStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("pg down")}
	called := false
	s := &Sweeper{
		Log: zap.NewNop(), Store: store,
		Interval: time.Minute, Expiry: time.Hour,
		OnExpired: func(int64) { called = true },
	}
	s.sweepOnce(context.Background())
	if called {
		t.Fatal("erro do repositório não pode contar como expiração")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := &Sweeper{Log: zap.NewNop(), Store: &fakeStore{}, Interval: time.Hour, Expiry: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run não encerrou no cancelamento")
	}
}
