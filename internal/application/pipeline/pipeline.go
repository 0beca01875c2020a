// Package pipeline orquesta un ciclo completo: colección → caché de precios
// o agregación → histórico → vistas derivadas → notificadores.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/buylist/internal/application/pricecache"
	"github.com/alejandrodnm/buylist/internal/application/signals"
	"github.com/alejandrodnm/buylist/internal/application/viewcache"
	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

// Config contiene la configuración del pipeline.
type Config struct {
	Interval       time.Duration // entre ciclos de Run
	HotWindowDays  int
	RetentionDays  int           // histórico
	CacheRetention time.Duration // entradas de la caché de precios sin refrescar
	Once           bool          // Run ejecuta un solo ciclo
}

// Aggregator es el subconjunto de aggregator.Aggregator que usa el pipeline.
type Aggregator interface {
	AggregateMany(ctx context.Context, cards []domain.CardIdentity) ([]domain.CardPriceSet, domain.BatchReport, error)
}

// Deps agrupa las dependencias inyectadas desde cmd/.
type Deps struct {
	Collection ports.CollectionReader
	Aggregator Aggregator
	Prices     *pricecache.Cache
	Views      *viewcache.Cache
	History    ports.HistoryStore
	Hot        *signals.HotCardDetector
	Recommend  *signals.RecommendationEngine
	Market     *signals.MarketAnalyzer
	Notifiers  []ports.Notifier
	Metrics    ports.Metrics
}

// Pipeline es el orquestador principal.
type Pipeline struct {
	cfg Config
	Deps
	now func() time.Time

	mu          sync.Mutex
	fingerprint string // de la última colección vista por este proceso
}

// Option configura dependencias opcionales.
type Option func(*Pipeline)

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New crea el pipeline. Metrics y Notifiers son opcionales.
func New(cfg Config, deps Deps, opts ...Option) *Pipeline {
	if cfg.HotWindowDays <= 0 {
		cfg.HotWindowDays = 7
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.CacheRetention <= 0 {
		cfg.CacheRetention = 7 * 24 * time.Hour
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	p := &Pipeline{cfg: cfg, Deps: deps, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ejecuta ciclos de refresco hasta que el contexto se cancele.
// Con cfg.Once solo ejecuta un ciclo y devuelve su error.
func (p *Pipeline) Run(ctx context.Context) error {
	slog.Info("pipeline starting", "interval", p.cfg.Interval, "once", p.cfg.Once)

	if err := p.runCycle(ctx); err != nil {
		slog.Error("refresh cycle failed", "err", err)
		if p.cfg.Once {
			return err
		}
	}
	if p.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pipeline stopped")
			return nil
		case <-ticker.C:
			if err := p.runCycle(ctx); err != nil {
				slog.Error("refresh cycle failed", "err", err)
			}
		}
	}
}

// runCycle refresca precios y aplica la retención.
func (p *Pipeline) runCycle(ctx context.Context) error {
	if _, err := p.Refresh(ctx, false); err != nil {
		return err
	}
	if _, err := p.Prune(ctx); err != nil {
		slog.Warn("prune failed", "err", err)
	}
	return nil
}

// Refresh obtiene precios para toda la colección.
//
// Sin force solo se agregan las cartas sin entrada fresca en caché. Con force
// se agregan todas. Cada set agregado se escribe en caché, se añade al
// histórico y las vistas derivadas se invalidan. Los notificadores reciben el
// reporte; sus errores se registran pero no fallan el ciclo.
func (p *Pipeline) Refresh(ctx context.Context, force bool) (domain.RefreshReport, error) {
	start := p.now()

	collection, err := p.loadCollection(ctx)
	if err != nil {
		return domain.RefreshReport{}, fmt.Errorf("pipeline.Refresh: %w", err)
	}
	cards := domain.Identities(collection)
	sets := p.Prices.Get(ctx, cards, false)

	var pending []int
	for i, set := range sets {
		if force || !set.HasPrices() {
			pending = append(pending, i)
		}
	}

	batch := domain.BatchReport{RunID: uuid.NewString(), StartedAt: start, FinishedAt: start}
	if len(pending) > 0 {
		toFetch := make([]domain.CardIdentity, len(pending))
		for j, i := range pending {
			toFetch[j] = cards[i]
		}
		fresh, report, err := p.Aggregator.AggregateMany(ctx, toFetch)
		if err != nil {
			return domain.RefreshReport{}, fmt.Errorf("pipeline.Refresh: %w", err)
		}
		batch = report
		for j, i := range pending {
			sets[i] = fresh[j]
		}
		p.persist(ctx, fresh, batch.RunID)
	}

	if force || len(pending) > 0 {
		if err := p.Views.InvalidateAll(ctx); err != nil {
			slog.Warn("view invalidation failed", "err", err)
		}
	}

	holdings := holdingsFor(collection, sets)
	hot := p.Hot.DetectHoldings(ctx, holdings, p.cfg.HotWindowDays)
	recs := p.Recommend.RecommendHoldings(ctx, holdings, hot)

	report := domain.RefreshReport{
		RunID:           batch.RunID,
		GeneratedAt:     p.now(),
		Holdings:        holdings,
		Summary:         domain.Summarize(holdings),
		HotCards:        hot,
		Recommendations: recs,
		Batch:           batch,
	}
	p.storeViews(ctx, report)
	p.notify(ctx, report)

	slog.Info("refresh complete",
		"run_id", report.RunID,
		"cards", len(cards),
		"aggregated", len(pending),
		"from_cache", len(cards)-len(pending),
		"hot", len(hot),
		"value", report.Summary.CollectionValue,
		"duration", p.now().Sub(start).Round(time.Millisecond),
	)
	return report, nil
}

// persist escribe los sets en caché y un registro por set en el histórico.
// Los fallos se registran: el ciclo sigue con los precios en memoria.
func (p *Pipeline) persist(ctx context.Context, sets []domain.CardPriceSet, runID string) {
	if err := p.Prices.Put(ctx, sets); err != nil {
		slog.Warn("price cache write failed", "err", err)
	}

	ts := p.now()
	records := make([]domain.PriceHistoryRecord, 0, len(sets))
	for _, s := range sets {
		records = append(records, domain.NewHistoryRecord(s, runID, ts))
	}
	if err := p.History.Append(ctx, records); err != nil {
		slog.Warn("history append failed", "run_id", runID, "err", err)
		return
	}
	p.Metrics.HistoryAppended(len(records))
}

func (p *Pipeline) notify(ctx context.Context, report domain.RefreshReport) {
	for _, n := range p.Notifiers {
		if err := n.Notify(ctx, report); err != nil {
			slog.Warn("notifier error", "notifier", fmt.Sprintf("%T", n), "err", err)
		}
	}
}

// CollectionChanged invalida todas las vistas: cualquier vista pudo
// depender de la colección anterior. Refresh y las vistas lo llaman solos
// al detectar otra huella de colección.
func (p *Pipeline) CollectionChanged(ctx context.Context) error {
	if err := p.Views.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("pipeline.CollectionChanged: %w", err)
	}
	slog.Info("collection changed, views invalidated")
	return nil
}

// collectionStateKey guarda la huella de la colección fuera del namespace de
// vistas, para que InvalidateAll no la borre.
const (
	collectionStateKey = "collection:fingerprint"
	collectionStateTTL = 365 * 24 * time.Hour
)

// loadCollection carga la colección e invalida las vistas si cambió desde la
// última vez que se vio, en este proceso o en otro que comparta el store.
func (p *Pipeline) loadCollection(ctx context.Context) ([]domain.CollectionCard, error) {
	collection, err := p.Collection.LoadCollection(ctx)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	fp := fingerprint(collection)
	p.mu.Lock()
	defer p.mu.Unlock()
	if fp == p.fingerprint {
		return collection, nil
	}

	var stored string
	if !p.Views.Get(ctx, collectionStateKey, &stored) || stored != fp {
		if err := p.CollectionChanged(ctx); err != nil {
			return nil, err
		}
		if err := p.Views.Set(ctx, collectionStateKey, fp, collectionStateTTL); err != nil {
			slog.Warn("collection fingerprint write failed", "err", err)
		}
	}
	p.fingerprint = fp
	return collection, nil
}

// fingerprint resume clave, cantidad y condición de cada carta, sin
// depender del orden del archivo.
func fingerprint(collection []domain.CollectionCard) string {
	rows := make([]string, len(collection))
	for i, c := range collection {
		rows[i] = fmt.Sprintf("%s#%d#%s", c.Card.Key(), c.Quantity, c.Condition)
	}
	sort.Strings(rows)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(rows, "\n"))).String()
}

// PruneResult cuenta lo eliminado por Prune.
type PruneResult struct {
	HistoryRecords int64
	CacheEntries   int64
	Views          int64
}

// Prune aplica la retención del histórico, limpia la caché de precios y
// purga las vistas expiradas. Nunca se ejecuta en medio de una consulta.
func (p *Pipeline) Prune(ctx context.Context) (PruneResult, error) {
	var res PruneResult
	cutoff := p.now().AddDate(0, 0, -p.cfg.RetentionDays)

	n, err := p.History.Prune(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline.Prune: history: %w", err)
	}
	res.HistoryRecords = n

	if res.CacheEntries, err = p.Prices.Cleanup(ctx, p.cfg.CacheRetention); err != nil {
		return res, fmt.Errorf("pipeline.Prune: %w", err)
	}
	if res.Views, err = p.Views.Sweep(ctx); err != nil {
		return res, fmt.Errorf("pipeline.Prune: %w", err)
	}

	if res.HistoryRecords > 0 || res.CacheEntries > 0 || res.Views > 0 {
		slog.Info("prune complete",
			"history", res.HistoryRecords,
			"cache", res.CacheEntries,
			"views", res.Views,
		)
	}
	return res, nil
}

// holdingsFor combina la colección con los sets, que vienen en el mismo orden.
func holdingsFor(collection []domain.CollectionCard, sets []domain.CardPriceSet) []domain.Holding {
	out := make([]domain.Holding, len(collection))
	for i, c := range collection {
		cond := c.Condition
		if cond == "" {
			cond = domain.ConditionNM
		}
		out[i] = domain.Holding{Set: sets[i], Quantity: c.Quantity, Condition: cond}
	}
	return out
}
