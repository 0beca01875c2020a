// Package viewcache cachea las vistas derivadas (dashboard, análisis de
// mercado, hot cards, recomendaciones) con un TTL propio por vista.
package viewcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/buylist/internal/ports"
)

// Namespace agrupa todas las claves de vistas; invalidarlo las borra todas.
const Namespace = "views"

// Vistas conocidas.
const (
	ViewDashboard       = "dashboard"
	ViewMarketAnalysis  = "market_analysis"
	ViewHotCards        = "hot_cards"
	ViewRecommendations = "recommendations"
)

// TTLs por vista.
type TTLs struct {
	Dashboard       time.Duration
	MarketAnalysis  time.Duration
	HotCards        time.Duration
	Recommendations time.Duration
}

// DefaultTTLs devuelve los TTL por defecto.
func DefaultTTLs() TTLs {
	return TTLs{
		Dashboard:       24 * time.Hour,
		MarketAnalysis:  6 * time.Hour,
		HotCards:        6 * time.Hour,
		Recommendations: 12 * time.Hour,
	}
}

// fallbackTTL se usa para vistas sin TTL propio.
const fallbackTTL = time.Hour

// Key construye la clave de una vista: "views:<view>[:<param>...]".
func Key(view string, params ...any) string {
	key := Namespace + ":" + view
	for _, p := range params {
		key = fmt.Sprintf("%s:%v", key, p)
	}
	return key
}

// Option configura dependencias opcionales.
type Option func(*Cache)

// WithMetrics inyecta el recorder de métricas.
func WithMetrics(m ports.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache es el servicio de caché de vistas derivadas sobre un ViewStore.
type Cache struct {
	store   ports.ViewStore
	ttls    TTLs
	metrics ports.Metrics
}

// New crea la caché. TTLs a cero toman el valor por defecto.
func New(store ports.ViewStore, ttls TTLs, opts ...Option) *Cache {
	def := DefaultTTLs()
	if ttls.Dashboard <= 0 {
		ttls.Dashboard = def.Dashboard
	}
	if ttls.MarketAnalysis <= 0 {
		ttls.MarketAnalysis = def.MarketAnalysis
	}
	if ttls.HotCards <= 0 {
		ttls.HotCards = def.HotCards
	}
	if ttls.Recommendations <= 0 {
		ttls.Recommendations = def.Recommendations
	}
	c := &Cache{store: store, ttls: ttls, metrics: ports.NopMetrics{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL devuelve el TTL que corresponde a la clave según su vista.
func (c *Cache) TTL(key string) time.Duration {
	switch viewOf(key) {
	case ViewDashboard:
		return c.ttls.Dashboard
	case ViewMarketAnalysis:
		return c.ttls.MarketAnalysis
	case ViewHotCards:
		return c.ttls.HotCards
	case ViewRecommendations:
		return c.ttls.Recommendations
	}
	return fallbackTTL
}

func viewOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 || parts[0] != Namespace {
		return ""
	}
	return parts[1]
}

// Get decodifica la vista en dest. Devuelve false en miss, expiración o
// cualquier error de lectura o decodificación (se registra y se trata como miss).
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	payload, found, err := c.store.GetView(ctx, key)
	if err != nil {
		slog.Warn("view cache read failed", "key", key, "err", err)
		c.metrics.CacheLookup("view", "miss")
		return false
	}
	if !found {
		c.metrics.CacheLookup("view", "miss")
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		slog.Warn("view cache payload corrupt", "key", key, "err", err)
		c.metrics.CacheLookup("view", "miss")
		return false
	}
	c.metrics.CacheLookup("view", "hit")
	return true
}

// Set serializa y guarda la vista. ttl <= 0 usa el TTL de la vista.
func (c *Cache) Set(ctx context.Context, key string, payload any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.TTL(key)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("viewcache.Set: marshal %s: %w", key, err)
	}
	if err := c.store.SetView(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("viewcache.Set: %s: %w", key, err)
	}
	return nil
}

// Invalidate borra una clave concreta o, si se pasa el nombre de una vista
// o el namespace, todas las claves de esa vista o del namespace.
func (c *Cache) Invalidate(ctx context.Context, keyOrNamespace string) error {
	key, prefix := c.targetOf(keyOrNamespace)
	if key != "" {
		if err := c.store.DeleteView(ctx, key); err != nil {
			return fmt.Errorf("viewcache.Invalidate: %s: %w", keyOrNamespace, err)
		}
	}
	if prefix != "" {
		if err := c.store.DeleteViewPrefix(ctx, prefix); err != nil {
			return fmt.Errorf("viewcache.Invalidate: %s: %w", keyOrNamespace, err)
		}
	}
	slog.Debug("views invalidated", "target", keyOrNamespace)
	return nil
}

// targetOf resuelve el objetivo de Invalidate en una clave exacta y/o un
// prefijo terminado en ":":
//   - "views" o "views:" → prefijo "views:"
//   - "dashboard" o "views:dashboard" → clave "views:dashboard" y prefijo "views:dashboard:"
//   - "views:hot_cards:7" → solo esa clave
func (c *Cache) targetOf(target string) (key, prefix string) {
	target = strings.TrimSuffix(target, ":")
	if target == Namespace {
		return "", Namespace + ":"
	}
	if !strings.Contains(target, ":") {
		target = Namespace + ":" + target
	}
	parts := strings.Split(target, ":")
	if len(parts) == 2 && parts[0] == Namespace {
		return target, target + ":"
	}
	return target, ""
}

// InvalidateAll borra todas las vistas. Se llama ante cualquier cambio de
// colección o refresco forzado.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.Invalidate(ctx, Namespace)
}

// Sweep purga físicamente las entradas expiradas si el store lo soporta.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	sw, ok := c.store.(ports.ViewSweeper)
	if !ok {
		return 0, nil
	}
	n, err := sw.SweepExpiredViews(ctx)
	if err != nil {
		return 0, fmt.Errorf("viewcache.Sweep: %w", err)
	}
	return n, nil
}
