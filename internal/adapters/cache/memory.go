package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	payload  []byte
	expireAt time.Time
	accessed time.Time
}

// MemoryOption configura MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxSize fija el número máximo de vistas en memoria (LRU).
func WithMaxSize(n int) MemoryOption {
	return func(m *MemoryStore) {
		if n > 0 {
			m.maxSize = n
		}
	}
}

// WithCleanupInterval arranca un barrido periódico de entradas expiradas.
// Con intervalo <= 0 solo se purgan al leerlas o con SweepExpiredViews.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.cleanupEvery = d }
}

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// MemoryStore implementa ports.ViewStore en memoria con expiración por
// entrada y desalojo LRU.
type MemoryStore struct {
	mu           sync.Mutex
	data         map[string]*memoryItem
	maxSize      int
	cleanupEvery time.Duration
	now          func() time.Time
	ticker       *time.Ticker
	done         chan struct{}
	closeOnce    sync.Once
}

// NewMemoryStore crea el store en memoria.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		data:    make(map[string]*memoryItem),
		maxSize: 1000,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cleanupEvery > 0 {
		m.ticker = time.NewTicker(m.cleanupEvery)
		go m.cleanupLoop()
	}
	return m
}

// GetView devuelve una copia del payload si existe y no expiró.
func (m *MemoryStore) GetView(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	now := m.now()
	if !now.Before(item.expireAt) {
		delete(m.data, key)
		return nil, false, nil
	}
	item.accessed = now
	return append([]byte(nil), item.payload...), true, nil
}

// SetView guarda una copia del payload con la expiración dada.
func (m *MemoryStore) SetView(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists && len(m.data) >= m.maxSize {
		m.evictLRU()
	}
	now := m.now()
	m.data[key] = &memoryItem{
		payload:  append([]byte(nil), payload...),
		expireAt: now.Add(ttl),
		accessed: now,
	}
	return nil
}

// DeleteView borra una vista.
func (m *MemoryStore) DeleteView(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// DeleteViewPrefix borra todas las vistas con el prefijo dado.
func (m *MemoryStore) DeleteViewPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

// SweepExpiredViews purga las entradas expiradas.
func (m *MemoryStore) SweepExpiredViews(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(), nil
}

// Len devuelve el número de entradas, expiradas incluidas.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Close detiene el barrido periódico.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		if m.ticker != nil {
			m.ticker.Stop()
		}
		close(m.done)
	})
	return nil
}

func (m *MemoryStore) sweepLocked() int64 {
	now := m.now()
	var n int64
	for key, item := range m.data {
		if !now.Before(item.expireAt) {
			delete(m.data, key)
			n++
		}
	}
	return n
}

// evictLRU desaloja primero las expiradas; si no había, la menos usada.
func (m *MemoryStore) evictLRU() {
	if m.sweepLocked() > 0 {
		return
	}
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, item := range m.data {
		if oldestKey == "" || item.accessed.Before(oldest) {
			oldestKey, oldest = key, item.accessed
		}
	}
	if oldestKey != "" {
		delete(m.data, oldestKey)
	}
}

func (m *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			m.mu.Lock()
			m.sweepLocked()
			m.mu.Unlock()
		}
	}
}
