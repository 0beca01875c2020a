// Package pricecache guarda el último CardPriceSet de cada carta en dos
// niveles: L1 en memoria (LRU) y L2 persistente (ports.PriceStore).
package pricecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

// Config contiene la configuración de la caché de precios.
type Config struct {
	Freshness  time.Duration // antigüedad máxima de un quote reutilizable (0 = 24h)
	MemorySize int           // entradas máximas en L1 (0 = 1000)
}

const (
	defaultFreshness  = 24 * time.Hour
	defaultMemorySize = 1000
)

// Option configura dependencias opcionales.
type Option func(*Cache)

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics inyecta el recorder de métricas.
func WithMetrics(m ports.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

type entry struct {
	set      domain.CardPriceSet
	accessed time.Time
}

// Cache es el servicio de caché de precios. Se construye una vez en main y
// se inyecta; no hay estado global.
type Cache struct {
	cfg     Config
	store   ports.PriceStore // puede ser nil: solo L1
	metrics ports.Metrics
	now     func() time.Time

	mu  sync.Mutex
	mem map[string]*entry
}

// New crea la caché sobre el store persistente dado.
func New(store ports.PriceStore, cfg Config, opts ...Option) *Cache {
	if cfg.Freshness <= 0 {
		cfg.Freshness = defaultFreshness
	}
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = defaultMemorySize
	}
	c := &Cache{
		cfg:     cfg,
		store:   store,
		metrics: ports.NopMetrics{},
		now:     time.Now,
		mem:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Freshness devuelve la ventana de frescura configurada.
func (c *Cache) Freshness() time.Duration { return c.cfg.Freshness }

// Get devuelve un set por carta, en el mismo orden.
//
// Sin force solo se reutiliza un set cuyos quotes son TODOS más recientes que
// la ventana de frescura; si no, se devuelve un set vacío para esa carta.
// Con force se devuelve lo que haya guardado, sin mirar la frescura.
// Un miss nunca hace fallar el batch.
func (c *Cache) Get(ctx context.Context, cards []domain.CardIdentity, force bool) []domain.CardPriceSet {
	now := c.now()
	out := make([]domain.CardPriceSet, len(cards))
	for i, card := range cards {
		set, ok := c.lookup(ctx, card)
		switch {
		case !ok:
			c.metrics.CacheLookup("price", "miss")
			out[i] = domain.EmptyPriceSet(card)
		case force || set.FreshAt(now, c.cfg.Freshness):
			c.metrics.CacheLookup("price", "hit")
			out[i] = set
		default:
			c.metrics.CacheLookup("price", "stale")
			slog.Debug("cached prices stale",
				"card", card.String(),
				"oldest", set.OldestObservation(),
			)
			out[i] = domain.EmptyPriceSet(card)
		}
	}
	return out
}

// lookup busca en L1 y luego en L2, promoviendo a L1 lo encontrado en L2.
// Un error de L2 se registra y se trata como miss.
func (c *Cache) lookup(ctx context.Context, card domain.CardIdentity) (domain.CardPriceSet, bool) {
	key := card.Key()

	c.mu.Lock()
	if e, ok := c.mem[key]; ok {
		e.accessed = c.now()
		set := e.set.Clone()
		c.mu.Unlock()
		return set, true
	}
	c.mu.Unlock()

	if c.store == nil {
		return domain.CardPriceSet{}, false
	}
	set, found, err := c.store.LoadPriceSet(ctx, card)
	if err != nil {
		slog.Warn("price store read failed", "card", card.String(), "err", err)
		return domain.CardPriceSet{}, false
	}
	if !found {
		return domain.CardPriceSet{}, false
	}
	c.remember(set)
	return set, true
}

// Put escribe los sets en L2 y luego en L1, reemplazando la entrada previa
// de cada carta. Cada set se guarda como copia: un lector nunca ve uno a
// medio escribir. Los fallos de L2 se registran y no abortan el resto.
func (c *Cache) Put(ctx context.Context, sets []domain.CardPriceSet) error {
	var failed int
	for _, set := range sets {
		if c.store != nil {
			if err := c.store.SavePriceSet(ctx, set); err != nil {
				failed++
				slog.Warn("price store write failed", "card", set.Card.String(), "err", err)
			}
		}
		c.remember(set)
	}
	if failed > 0 {
		return fmt.Errorf("pricecache.Put: %d of %d sets not persisted", failed, len(sets))
	}
	return nil
}

func (c *Cache) remember(set domain.CardPriceSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := set.Card.Key()
	if _, exists := c.mem[key]; !exists && len(c.mem) >= c.cfg.MemorySize {
		c.evictLRU()
	}
	c.mem[key] = &entry{set: set.Clone(), accessed: c.now()}
}

// evictLRU elimina la entrada con el acceso más antiguo. Requiere c.mu.
func (c *Cache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.mem {
		if oldestKey == "" || e.accessed.Before(oldest) {
			oldestKey, oldest = key, e.accessed
		}
	}
	if oldestKey != "" {
		delete(c.mem, oldestKey)
	}
}

// Status resume el estado de la caché.
type Status struct {
	TotalCards int       `json:"total_cards"`
	Fresh      int       `json:"fresh"`
	Stale      int       `json:"stale"`
	LastUpdate time.Time `json:"last_update"`
	NextUpdate time.Time `json:"next_update"`
}

// Status cuenta entradas frescas y viejas. Usa L2 si existe (es la fuente de
// verdad); si no, L1.
func (c *Cache) Status(ctx context.Context) (Status, error) {
	sets, err := c.all(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("pricecache.Status: %w", err)
	}

	now := c.now()
	var st Status
	for _, s := range sets {
		st.TotalCards++
		if s.FreshAt(now, c.cfg.Freshness) {
			st.Fresh++
		} else {
			st.Stale++
		}
		if s.UpdatedAt.After(st.LastUpdate) {
			st.LastUpdate = s.UpdatedAt
		}
	}
	if !st.LastUpdate.IsZero() {
		st.NextUpdate = st.LastUpdate.Add(c.cfg.Freshness)
	}
	return st, nil
}

func (c *Cache) all(ctx context.Context) ([]domain.CardPriceSet, error) {
	if c.store != nil {
		return c.store.ListPriceSets(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CardPriceSet, 0, len(c.mem))
	for _, e := range c.mem {
		out = append(out, e.set.Clone())
	}
	return out, nil
}

// Cleanup elimina las entradas cuyo último refresco es anterior a now-olderThan.
func (c *Cache) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := c.now().Add(-olderThan)

	c.mu.Lock()
	var removed int64
	for key, e := range c.mem {
		if e.set.UpdatedAt.Before(cutoff) {
			delete(c.mem, key)
			removed++
		}
	}
	c.mu.Unlock()

	if c.store == nil {
		return removed, nil
	}
	n, err := c.store.DeletePriceSetsBefore(ctx, cutoff)
	if err != nil {
		return removed, fmt.Errorf("pricecache.Cleanup: %w", err)
	}
	slog.Info("price cache cleanup", "cutoff", cutoff, "removed", n)
	return n, nil
}

// Clear vacía ambos niveles.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.mem = make(map[string]*entry)
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.ClearPriceSets(ctx); err != nil {
		return fmt.Errorf("pricecache.Clear: %w", err)
	}
	return nil
}
