package aggregator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeSource implementa ports.QuoteSource con comportamiento configurable.
type fakeSource struct {
	name      string
	quotes    []domain.PriceQuote
	err       error
	delay     time.Duration
	ignoreCtx bool
	panics    bool

	active    *int32
	maxActive *int32
	calls     int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Quote(ctx context.Context, card domain.CardIdentity) ([]domain.PriceQuote, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.active != nil {
		n := atomic.AddInt32(f.active, 1)
		defer atomic.AddInt32(f.active, -1)
		for {
			m := atomic.LoadInt32(f.maxActive)
			if n <= m || atomic.CompareAndSwapInt32(f.maxActive, m, n) {
				break
			}
		}
	}
	if f.panics {
		panic("scraper exploded")
	}
	if f.delay > 0 {
		if f.ignoreCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.quotes, nil
}

func bid(amount float64, at time.Time) domain.PriceQuote {
	return domain.PriceQuote{Amount: decimal.NewFromFloat(amount), Kind: domain.KindBid, ObservedAt: at}
}

func offer(amount float64, at time.Time) domain.PriceQuote {
	return domain.PriceQuote{Amount: decimal.NewFromFloat(amount), Kind: domain.KindOffer, ObservedAt: at}
}

func card(name string) domain.CardIdentity {
	return domain.CardIdentity{Name: name, Set: "Modern Horizons 2"}
}

func newTestAggregator(cfg Config, sources ...ports.QuoteSource) *Aggregator {
	return New(cfg, sources, WithClock(func() time.Time { return t0 }))
}

// fakeJournal guarda los reportes recibidos.
type fakeJournal struct {
	mu      sync.Mutex
	reports []domain.BatchReport
}

func (j *fakeJournal) Record(_ context.Context, r domain.BatchReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reports = append(j.reports, r)
	return nil
}

func TestAggregate_MergesAllSources(t *testing.T) {
	a := newTestAggregator(Config{Workers: 3, Deadline: time.Second},
		&fakeSource{name: "cardkingdom", quotes: []domain.PriceQuote{bid(40, t0), offer(60, t0)}},
		&fakeSource{name: "starcity", quotes: []domain.PriceQuote{bid(42, t0)}},
		&fakeSource{name: "tcgplayer", quotes: []domain.PriceQuote{offer(55, t0)}},
	)

	set, err := a.Aggregate(context.Background(), card("Ragavan"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"cardkingdom", "starcity", "tcgplayer"}, set.Sources())
	require.NotNil(t, set.BestBid)
	require.NotNil(t, set.BestOffer)
	assert.Equal(t, "starcity", set.BestBid.Source)
	assert.Equal(t, "tcgplayer", set.BestOffer.Source)
	assert.Equal(t, t0, set.UpdatedAt)

	// Los quotes quedan atribuidos a la fuente que los produjo.
	for name, quotes := range set.Prices {
		for _, q := range quotes {
			assert.Equal(t, name, q.Source)
			assert.Equal(t, domain.ConditionNM, q.Condition)
		}
	}
}

func TestAggregate_PartialFailureIsolation(t *testing.T) {
	a := newTestAggregator(Config{Workers: 2, Deadline: time.Second},
		&fakeSource{name: "A", err: errors.New("connection reset")},
		&fakeSource{name: "B", quotes: []domain.PriceQuote{bid(10, t0)}},
	)

	set, err := a.Aggregate(context.Background(), card("Solitude"))
	require.NoError(t, err)

	assert.Equal(t, []string{"B"}, set.Sources())
	_, hasA := set.Prices["A"]
	assert.False(t, hasA, "failed source must not leave a placeholder")
	assert.Equal(t, "B", set.BestBid.Source)
}

func TestAggregate_AllSourcesFail(t *testing.T) {
	a := newTestAggregator(Config{Workers: 3, Deadline: time.Second},
		&fakeSource{name: "A", err: domain.ErrSourceUnavailable},
		&fakeSource{name: "B", err: errors.New("parse error")},
		&fakeSource{name: "C", panics: true},
	)

	set, err := a.Aggregate(context.Background(), card("Urza's Saga"))
	require.NoError(t, err)

	assert.False(t, set.HasPrices())
	assert.Nil(t, set.BestBid)
	assert.Nil(t, set.BestOffer)
	assert.Equal(t, "Urza's Saga", set.Card.Name)
}

func TestAggregate_DeadlineExcludesSlowSource(t *testing.T) {
	slow := &fakeSource{name: "slow", delay: 2 * time.Second, ignoreCtx: true, quotes: []domain.PriceQuote{bid(99, t0)}}
	fast := &fakeSource{name: "fast", quotes: []domain.PriceQuote{bid(10, t0)}}
	a := newTestAggregator(Config{Workers: 2, Deadline: 50 * time.Millisecond}, slow, fast)

	start := time.Now()
	set, err := a.Aggregate(context.Background(), card("Fury"))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second, "slow source must not hold up the call")
	assert.Equal(t, []string{"fast"}, set.Sources())
	assert.Equal(t, "fast", set.BestBid.Source)

	health := a.SourceHealth()
	require.Len(t, health, 2)
	assert.Equal(t, "fast", health[0].Source)
	assert.Equal(t, 1, health[0].Successes)
	assert.Equal(t, "slow", health[1].Source)
	assert.Equal(t, 1, health[1].Timeouts)
}

func TestAggregate_ContextAwareSourceTimesOut(t *testing.T) {
	a := newTestAggregator(Config{Workers: 1, Deadline: 30 * time.Millisecond},
		&fakeSource{name: "slow", delay: time.Second},
	)
	set, err := a.Aggregate(context.Background(), card("Grief"))
	require.NoError(t, err)
	assert.False(t, set.HasPrices())
	assert.Equal(t, 1, a.SourceHealth()[0].Timeouts)
}

func TestAggregate_InvalidCard(t *testing.T) {
	src := &fakeSource{name: "A"}
	a := newTestAggregator(Config{}, src)

	_, err := a.Aggregate(context.Background(), domain.CardIdentity{Name: "No Set"})
	assert.ErrorIs(t, err, domain.ErrInvalidCard)
	assert.Zero(t, atomic.LoadInt32(&src.calls))
}

func TestAggregate_EmptyResultIsNotAFailure(t *testing.T) {
	a := newTestAggregator(Config{Deadline: time.Second},
		&fakeSource{name: "A"},
		&fakeSource{name: "B", quotes: []domain.PriceQuote{bid(3, t0)}},
	)
	set, err := a.Aggregate(context.Background(), card("Ponder"))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, set.Sources())

	for _, h := range a.SourceHealth() {
		assert.Zero(t, h.Failures, h.Source)
	}
}

func TestAggregate_DropsInvalidQuotes(t *testing.T) {
	a := newTestAggregator(Config{Deadline: time.Second},
		&fakeSource{name: "A", quotes: []domain.PriceQuote{bid(-5, t0), bid(5, t0)}},
	)
	set, err := a.Aggregate(context.Background(), card("Brainstorm"))
	require.NoError(t, err)
	require.Len(t, set.Prices["A"], 1)
	assert.InDelta(t, 5.0, set.BestBidFloat(), 1e-9)
}

func TestAggregate_TieBreakAcrossSources(t *testing.T) {
	a := newTestAggregator(Config{Workers: 2, Deadline: time.Second},
		&fakeSource{name: "Y", quotes: []domain.PriceQuote{bid(40, t0.Add(5*time.Minute))}, delay: 5 * time.Millisecond},
		&fakeSource{name: "X", quotes: []domain.PriceQuote{bid(40, t0)}, delay: 20 * time.Millisecond},
	)
	set, err := a.Aggregate(context.Background(), card("Thoughtseize"))
	require.NoError(t, err)
	assert.Equal(t, "X", set.BestBid.Source)
}

func TestAggregate_RespectsWorkerLimit(t *testing.T) {
	var active, maxActive int32
	var sources []ports.QuoteSource
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		sources = append(sources, &fakeSource{
			name:      name,
			delay:     20 * time.Millisecond,
			quotes:    []domain.PriceQuote{bid(1, t0)},
			active:    &active,
			maxActive: &maxActive,
		})
	}
	a := newTestAggregator(Config{Workers: 2, Deadline: 5 * time.Second}, sources...)

	set, err := a.Aggregate(context.Background(), card("Counterspell"))
	require.NoError(t, err)
	assert.Len(t, set.Sources(), 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(2))
}

func TestAggregateMany_OneSetPerCard(t *testing.T) {
	journal := &fakeJournal{}
	a := New(Config{Workers: 2, Deadline: time.Second},
		[]ports.QuoteSource{
			&fakeSource{name: "A", err: errors.New("503")},
			&fakeSource{name: "B", quotes: []domain.PriceQuote{bid(7, t0)}},
		},
		WithClock(func() time.Time { return t0 }),
		WithJournal(journal),
	)

	cards := []domain.CardIdentity{card("Ragavan"), card("Solitude"), card("Endurance")}
	sets, report, err := a.AggregateMany(context.Background(), cards)
	require.NoError(t, err)

	require.Len(t, sets, 3)
	for i, s := range sets {
		assert.Equal(t, cards[i], s.Card)
		assert.True(t, s.HasPrices())
	}
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Cards)
	assert.Equal(t, 3, report.CardsWithPrices)
	assert.Equal(t, 6, report.SourceCalls)
	require.Len(t, report.Failures, 3)
	assert.Equal(t, "A", report.Failures[0].Source)
	assert.False(t, report.Failures[0].Timeout)

	require.Len(t, journal.reports, 1)
	assert.Equal(t, report.RunID, journal.reports[0].RunID)
}

func TestAggregateMany_ReportsSourceHealthPerBatch(t *testing.T) {
	journal := &fakeJournal{}
	a := New(Config{Workers: 2, Deadline: time.Second},
		[]ports.QuoteSource{
			&fakeSource{name: "A", err: errors.New("503")},
			&fakeSource{name: "B", quotes: []domain.PriceQuote{bid(7, t0)}},
			&fakeSource{name: "C"},
		},
		WithClock(func() time.Time { return t0 }),
		WithJournal(journal),
	)
	cards := []domain.CardIdentity{card("Ragavan"), card("Solitude")}

	_, _, err := a.AggregateMany(context.Background(), cards)
	require.NoError(t, err)
	_, report, err := a.AggregateMany(context.Background(), cards)
	require.NoError(t, err)

	// El reporte sólo cuenta su batch; el acumulado del proceso lleva los dos.
	require.Len(t, report.Sources, 3)
	a0 := report.Sources[0]
	assert.Equal(t, "A", a0.Source)
	assert.Equal(t, 2, a0.Calls)
	assert.Equal(t, 2, a0.Failures)
	assert.Contains(t, a0.LastError, "503")
	assert.Equal(t, 2, report.Sources[1].Successes)
	assert.Equal(t, 2, report.Sources[2].Empty)

	life := a.SourceHealth()
	require.Len(t, life, 3)
	assert.Equal(t, 4, life[0].Calls)
	assert.Equal(t, 4, life[0].Failures)

	require.Len(t, journal.reports, 2)
	assert.Equal(t, report.Sources, journal.reports[1].Sources)
}

func TestAggregateMany_AllFailStillReturnsSets(t *testing.T) {
	a := newTestAggregator(Config{Deadline: time.Second},
		&fakeSource{name: "A", err: errors.New("down")},
	)
	cards := []domain.CardIdentity{card("One"), card("Two")}

	sets, report, err := a.AggregateMany(context.Background(), cards)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.False(t, sets[0].HasPrices())
	assert.False(t, sets[1].HasPrices())
	assert.Equal(t, 2, report.CardsEmpty)
}

func TestAggregateMany_InvalidCardFailsFast(t *testing.T) {
	src := &fakeSource{name: "A"}
	a := newTestAggregator(Config{}, src)

	_, _, err := a.AggregateMany(context.Background(), []domain.CardIdentity{card("Ok"), {Name: "Broken"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCard)
	assert.Zero(t, atomic.LoadInt32(&src.calls))
}

func TestAggregateMany_CancelledContext(t *testing.T) {
	a := newTestAggregator(Config{Deadline: time.Second},
		&fakeSource{name: "A", quotes: []domain.PriceQuote{bid(1, t0)}},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sets, report, err := a.AggregateMany(ctx, []domain.CardIdentity{card("One"), card("Two")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sets, 2)
	assert.Equal(t, 2, report.CardsEmpty)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, classify(ctx, errors.New("boom")), domain.ErrSourceUnavailable)
	assert.ErrorIs(t, classify(ctx, context.DeadlineExceeded), domain.ErrSourceTimeout)
	assert.ErrorIs(t, classify(ctx, domain.ErrSourceTimeout), domain.ErrSourceTimeout)
}
