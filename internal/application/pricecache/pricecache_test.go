package pricecache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	sets    map[string]domain.CardPriceSet
	readErr error
	saveErr error
	loads   int
}

func newMemStore() *memStore { return &memStore{sets: make(map[string]domain.CardPriceSet)} }

func (m *memStore) LoadPriceSet(_ context.Context, card domain.CardIdentity) (domain.CardPriceSet, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.readErr != nil {
		return domain.CardPriceSet{}, false, m.readErr
	}
	s, ok := m.sets[card.Key()]
	return s.Clone(), ok, nil
}

func (m *memStore) SavePriceSet(_ context.Context, set domain.CardPriceSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sets[set.Card.Key()] = set.Clone()
	return nil
}

func (m *memStore) ListPriceSets(context.Context) ([]domain.CardPriceSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.CardPriceSet, 0, len(m.sets))
	for _, s := range m.sets {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *memStore) DeletePriceSetsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.sets {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sets, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ClearPriceSets(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = make(map[string]domain.CardPriceSet)
	return nil
}

func card(name string) domain.CardIdentity {
	return domain.CardIdentity{Name: name, Set: "Dominaria United"}
}

func setObservedAt(c domain.CardIdentity, ages ...time.Duration) domain.CardPriceSet {
	prices := map[string][]domain.PriceQuote{}
	for i, age := range ages {
		src := string(rune('A' + i))
		prices[src] = []domain.PriceQuote{{
			Source:     src,
			Amount:     decimal.NewFromInt(int64(10 + i)),
			Kind:       domain.KindBid,
			ObservedAt: now.Add(-age),
		}}
	}
	s := domain.NewCardPriceSet(c, prices)
	s.UpdatedAt = now.Add(-ages[0])
	return s
}

func newCache(store *memStore) *Cache {
	var ps ports.PriceStore
	if store != nil {
		ps = store
	}
	return New(ps, Config{Freshness: 24 * time.Hour}, WithClock(func() time.Time { return now }))
}

func TestGet_FreshSetIsServed(t *testing.T) {
	c := newCache(newMemStore())
	fresh := setObservedAt(card("Sheoldred"), time.Hour, 20*time.Hour)
	require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{fresh}))

	got := c.Get(context.Background(), []domain.CardIdentity{card("Sheoldred")}, false)
	require.Len(t, got, 1)
	assert.True(t, got[0].HasPrices())
	assert.Equal(t, "B", got[0].BestBid.Source)
}

func TestGet_StaleSetGatedUnlessForced(t *testing.T) {
	c := newCache(newMemStore())
	mixed := setObservedAt(card("Sheoldred"), time.Hour, 25*time.Hour)
	require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{mixed}))

	got := c.Get(context.Background(), []domain.CardIdentity{card("Sheoldred")}, false)
	assert.False(t, got[0].HasPrices(), "a single stale quote disqualifies the set")

	forced := c.Get(context.Background(), []domain.CardIdentity{card("Sheoldred")}, true)
	assert.True(t, forced[0].HasPrices())
	assert.Equal(t, 2, forced[0].QuoteCount())
}

func TestGet_MissReturnsEmptySetPerCard(t *testing.T) {
	c := newCache(newMemStore())
	fresh := setObservedAt(card("Known"), time.Hour)
	require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{fresh}))

	cards := []domain.CardIdentity{card("Unknown"), card("Known")}
	got := c.Get(context.Background(), cards, false)

	require.Len(t, got, 2)
	assert.Equal(t, card("Unknown"), got[0].Card)
	assert.False(t, got[0].HasPrices())
	assert.True(t, got[1].HasPrices())
}

func TestGet_StoreReadErrorIsAMiss(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("disk I/O error")
	c := newCache(store)

	got := c.Get(context.Background(), []domain.CardIdentity{card("X")}, false)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasPrices())
}

func TestGet_PromotesFromStoreToMemory(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.SavePriceSet(context.Background(), setObservedAt(card("L2"), time.Hour)))
	c := newCache(store)

	c.Get(context.Background(), []domain.CardIdentity{card("L2")}, false)
	c.Get(context.Background(), []domain.CardIdentity{card("L2")}, false)
	assert.Equal(t, 1, store.loads, "second read must be served from memory")
}

func TestPut_ReplacesPriorEntry(t *testing.T) {
	c := newCache(newMemStore())
	old := setObservedAt(card("Bolt"), time.Hour)
	newer := setObservedAt(card("Bolt"), time.Minute, time.Minute)
	require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{old}))
	require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{newer}))

	got := c.Get(context.Background(), []domain.CardIdentity{card("Bolt")}, false)
	assert.Equal(t, 2, got[0].QuoteCount())
}

func TestPut_ReturnedSetIsACopy(t *testing.T) {
	c := newCache(nil)
	require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{setObservedAt(card("Bolt"), time.Hour)}))

	got := c.Get(context.Background(), []domain.CardIdentity{card("Bolt")}, false)
	got[0].Prices["A"][0].Amount = decimal.NewFromInt(999)

	again := c.Get(context.Background(), []domain.CardIdentity{card("Bolt")}, false)
	assert.True(t, again[0].Prices["A"][0].Amount.Equal(decimal.NewFromInt(10)))
}

func TestPut_StoreFailureStillCachesInMemory(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("database is locked")
	c := newCache(store)

	err := c.Put(context.Background(), []domain.CardPriceSet{setObservedAt(card("Bolt"), time.Hour)})
	assert.Error(t, err)

	got := c.Get(context.Background(), []domain.CardIdentity{card("Bolt")}, false)
	assert.True(t, got[0].HasPrices())
}

func TestMemoryEviction(t *testing.T) {
	clock := now
	c := New(nil, Config{MemorySize: 2}, WithClock(func() time.Time { return clock }))

	put := func(name string) {
		clock = clock.Add(time.Second)
		require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{setObservedAt(card(name), time.Minute)}))
	}
	put("a")
	put("b")
	clock = clock.Add(time.Second)
	c.Get(context.Background(), []domain.CardIdentity{card("a")}, true)
	put("c")

	got := c.Get(context.Background(), []domain.CardIdentity{card("a"), card("b"), card("c")}, true)
	assert.True(t, got[0].HasPrices())
	assert.False(t, got[1].HasPrices(), "least recently used entry is evicted")
	assert.True(t, got[2].HasPrices())
}

func TestStatus(t *testing.T) {
	c := newCache(newMemStore())
	require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{
		setObservedAt(card("fresh"), time.Hour),
		setObservedAt(card("stale"), 30*time.Hour),
	}))

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalCards)
	assert.Equal(t, 1, st.Fresh)
	assert.Equal(t, 1, st.Stale)
	assert.Equal(t, now.Add(-time.Hour), st.LastUpdate)
	assert.Equal(t, now.Add(23*time.Hour), st.NextUpdate)
}

func TestCleanupAndClear(t *testing.T) {
	store := newMemStore()
	c := newCache(store)
	require.NoError(t, c.Put(context.Background(), []domain.CardPriceSet{
		setObservedAt(card("recent"), time.Hour),
		setObservedAt(card("ancient"), 10*24*time.Hour),
	}))

	n, err := c.Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got := c.Get(context.Background(), []domain.CardIdentity{card("ancient"), card("recent")}, true)
	assert.False(t, got[0].HasPrices())
	assert.True(t, got[1].HasPrices())

	require.NoError(t, c.Clear(context.Background()))
	got = c.Get(context.Background(), []domain.CardIdentity{card("recent")}, true)
	assert.False(t, got[0].HasPrices())
}
