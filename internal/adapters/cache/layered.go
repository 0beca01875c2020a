package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/buylist/internal/ports"
)

// defaultPromoteTTL limita cuánto vive en L1 una vista leída de L2: L1 no
// conoce la expiración real de L2.
const defaultPromoteTTL = time.Minute

// LayeredStore combina un L1 en memoria con un L2 compartido (Redis o
// SQLite). Escribe en L2 y luego en L1; lee de L1 y, si falla, de L2.
type LayeredStore struct {
	l1         *MemoryStore
	l2         ports.ViewStore
	promoteTTL time.Duration
}

// NewLayeredStore crea el store de dos niveles.
func NewLayeredStore(l1 *MemoryStore, l2 ports.ViewStore, promoteTTL time.Duration) *LayeredStore {
	if promoteTTL <= 0 {
		promoteTTL = defaultPromoteTTL
	}
	return &LayeredStore{l1: l1, l2: l2, promoteTTL: promoteTTL}
}

func (l *LayeredStore) GetView(ctx context.Context, key string) ([]byte, bool, error) {
	if payload, ok, _ := l.l1.GetView(ctx, key); ok {
		return payload, true, nil
	}
	payload, ok, err := l.l2.GetView(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = l.l1.SetView(ctx, key, payload, l.promoteTTL)
	return payload, true, nil
}

func (l *LayeredStore) SetView(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := l.l2.SetView(ctx, key, payload, ttl); err != nil {
		return err
	}
	l1TTL := ttl
	if l1TTL > l.promoteTTL {
		l1TTL = l.promoteTTL
	}
	return l.l1.SetView(ctx, key, payload, l1TTL)
}

func (l *LayeredStore) DeleteView(ctx context.Context, key string) error {
	_ = l.l1.DeleteView(ctx, key)
	return l.l2.DeleteView(ctx, key)
}

func (l *LayeredStore) DeleteViewPrefix(ctx context.Context, prefix string) error {
	_ = l.l1.DeleteViewPrefix(ctx, prefix)
	return l.l2.DeleteViewPrefix(ctx, prefix)
}

// SweepExpiredViews barre L1 y, si lo soporta, L2.
func (l *LayeredStore) SweepExpiredViews(ctx context.Context) (int64, error) {
	n, _ := l.l1.SweepExpiredViews(ctx)
	sw, ok := l.l2.(ports.ViewSweeper)
	if !ok {
		return n, nil
	}
	m, err := sw.SweepExpiredViews(ctx)
	if err != nil {
		slog.Warn("cache: L2 sweep failed", "err", err)
		return n, err
	}
	return n + m, nil
}

// Close detiene el barrido de L1. L2 lo cierra su dueño.
func (l *LayeredStore) Close() error {
	return l.l1.Close()
}
