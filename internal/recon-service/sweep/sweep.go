package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store expira em lote os depósitos PENDING mais velhos que o corte
type Store interface {
	ExpireStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sweeper roda a varredura periódica de expiração. Convive com matcher e
// operador sem coordenação extra: a expiração usa o mesmo caminho guardado
// por status do repositório.
type Sweeper struct {
	Log      *zap.Logger
	Store    Store
	Interval time.Duration
	Expiry   time.Duration // idade máxima de um depósito PENDING

	OnExpired func(int64)
}

// Run executa a varredura até o contexto ser cancelado
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.Expiry)
	n, err := s.Store.ExpireStale(ctx, cutoff)
	if err != nil {
		s.Log.Error("expire sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.Log.Info("expired stale requests", zap.Int64("count", n))
		if s.OnExpired != nil {
			s.OnExpired(n)
		}
	}
}
