package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

// Config contiene la configuración del agregador.
type Config struct {
	Workers  int           // llamadas a fuentes en paralelo por carta (0 = 4)
	Deadline time.Duration // tiempo máximo de espera por carta (0 = sin límite propio)
}

const defaultWorkers = 4

// Option configura dependencias opcionales del Aggregator.
type Option func(*Aggregator)

// WithMetrics inyecta el recorder de métricas.
func WithMetrics(m ports.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithJournal registra cada BatchReport de AggregateMany en el journal.
func WithJournal(j ports.RunJournal) Option {
	return func(a *Aggregator) { a.journal = j }
}

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// Aggregator reparte una carta entre todas las fuentes registradas y
// combina lo que vuelve antes del deadline en un CardPriceSet.
type Aggregator struct {
	cfg     Config
	sources []ports.QuoteSource
	metrics ports.Metrics
	journal ports.RunJournal
	now     func() time.Time
	health  *healthTracker
}

// New crea un Aggregator con las fuentes inyectadas.
func New(cfg Config, sources []ports.QuoteSource, opts ...Option) *Aggregator {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	a := &Aggregator{
		cfg:     cfg,
		sources: sources,
		metrics: ports.NopMetrics{},
		now:     time.Now,
		health:  newHealthTracker(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SourceNames devuelve los nombres de las fuentes registradas.
func (a *Aggregator) SourceNames() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

// Aggregate consulta todas las fuentes para la carta y devuelve el set combinado.
//
// Los fallos de fuentes individuales se registran y se omiten del resultado:
// el único error posible es una CardIdentity inválida.
func (a *Aggregator) Aggregate(ctx context.Context, card domain.CardIdentity) (domain.CardPriceSet, error) {
	if err := card.Validate(); err != nil {
		return domain.CardPriceSet{}, fmt.Errorf("aggregator.Aggregate: %w", err)
	}
	set, _ := a.aggregate(ctx, card, nil)
	return set, nil
}

// AggregateMany procesa el batch carta a carta (las fuentes de cada carta
// sí van en paralelo) y devuelve exactamente un set por carta de entrada,
// en el mismo orden. Los fallos parciales quedan en el BatchReport.
func (a *Aggregator) AggregateMany(ctx context.Context, cards []domain.CardIdentity) ([]domain.CardPriceSet, domain.BatchReport, error) {
	report := domain.BatchReport{
		RunID:     uuid.New().String(),
		StartedAt: a.now(),
		Cards:     len(cards),
	}
	for _, c := range cards {
		if err := c.Validate(); err != nil {
			return nil, report, fmt.Errorf("aggregator.AggregateMany: %w", err)
		}
	}

	batch := newHealthTracker()
	sets := make([]domain.CardPriceSet, len(cards))
	for i, card := range cards {
		if ctx.Err() != nil {
			sets[i] = domain.EmptyPriceSet(card)
			sets[i].UpdatedAt = a.now()
			report.CardsEmpty++
			continue
		}

		set, failures := a.aggregate(ctx, card, batch)
		sets[i] = set
		report.SourceCalls += len(a.sources)
		for _, f := range failures {
			report.AddFailure(f)
		}
		if set.HasPrices() {
			report.CardsWithPrices++
		} else {
			report.CardsEmpty++
			slog.Info("no prices found", "card", card.String())
		}
	}
	report.FinishedAt = a.now()
	report.Sources = batch.snapshot()

	a.metrics.BatchCompleted(len(cards), report.Duration())
	if a.journal != nil {
		if err := a.journal.Record(ctx, report); err != nil {
			slog.Warn("journal record failed", "run_id", report.RunID, "err", err)
		}
	}

	slog.Info("aggregation batch complete",
		"run_id", report.RunID,
		"cards", report.Cards,
		"with_prices", report.CardsWithPrices,
		"empty", report.CardsEmpty,
		"source_failures", len(report.Failures),
		"timeouts", report.Timeouts(),
		"duration", report.Duration().Round(time.Millisecond),
	)
	for _, h := range report.Sources {
		slog.Info("source health",
			"run_id", report.RunID,
			"source", h.Source,
			"calls", h.Calls,
			"ok", h.Successes,
			"empty", h.Empty,
			"failures", h.Failures,
			"timeouts", h.Timeouts,
			"mean_latency", h.MeanLatency.Round(time.Millisecond),
		)
	}

	if err := ctx.Err(); err != nil {
		return sets, report, fmt.Errorf("aggregator.AggregateMany: %w", err)
	}
	return sets, report, nil
}

// aggregate hace fan-out → merge. Nunca falla: devuelve el set (posiblemente
// vacío) y los errores por fuente. batch, si no es nil, cuenta los resultados
// del batch en curso.
func (a *Aggregator) aggregate(ctx context.Context, card domain.CardIdentity, batch *healthTracker) (domain.CardPriceSet, []*domain.SourceError) {
	if a.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Deadline)
		defer cancel()
	}

	results := quoteSourcesConcurrent(ctx, a.sources, card, a.cfg.Workers)

	prices := make(map[string][]domain.PriceQuote, len(results))
	var failures []*domain.SourceError
	for _, r := range results {
		a.health.record(r)
		if batch != nil {
			batch.record(r)
		}
		if r.err != nil {
			serr := &domain.SourceError{Source: r.source, Card: card.Key(), Err: r.err}
			failures = append(failures, serr)
			outcome := "error"
			if serr.IsTimeout() {
				outcome = "timeout"
			}
			a.metrics.ObserveSource(r.source, outcome, r.elapsed)
			slog.Warn("source failed",
				"card", card.String(),
				"source", r.source,
				"timeout", serr.IsTimeout(),
				"err", r.err,
			)
			continue
		}

		quotes := a.normalize(r.source, r.quotes)
		if len(quotes) == 0 {
			a.metrics.ObserveSource(r.source, "empty", r.elapsed)
			slog.Debug("source returned no data", "card", card.String(), "source", r.source)
			continue
		}
		a.metrics.ObserveSource(r.source, "ok", r.elapsed)
		prices[r.source] = quotes
	}

	set := domain.NewCardPriceSet(card, prices)
	set.UpdatedAt = a.now()
	return set, failures
}

// normalize atribuye cada quote a la fuente que lo produjo, completa el
// timestamp si falta y descarta quotes mal formados.
func (a *Aggregator) normalize(source string, quotes []domain.PriceQuote) []domain.PriceQuote {
	out := make([]domain.PriceQuote, 0, len(quotes))
	for _, q := range quotes {
		q.Source = source
		if q.ObservedAt.IsZero() {
			q.ObservedAt = a.now()
		}
		if q.Condition == "" {
			q.Condition = domain.ConditionNM
		}
		if err := q.Valid(); err != nil {
			slog.Warn("dropping invalid quote", "source", source, "err", err)
			continue
		}
		out = append(out, q)
	}
	return out
}

// classify convierte el error de una fuente en uno de los dos sentinels.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrSourceTimeout), errors.Is(err, domain.ErrSourceUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrSourceTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", domain.ErrSourceTimeout, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
}
