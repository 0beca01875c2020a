package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/buylist/internal/adapters/storage"
	"github.com/alejandrodnm/buylist/internal/domain"
)

var bolt = domain.CardIdentity{Name: "Lightning Bolt", Set: "Magic 2010", SetCode: "M10"}

func quote(source string, amount string, kind domain.QuoteKind, at time.Time) domain.PriceQuote {
	return domain.PriceQuote{
		Source:     source,
		Amount:     decimal.RequireFromString(amount),
		Kind:       kind,
		Condition:  domain.ConditionNM,
		ObservedAt: at,
	}
}

func newStore(t *testing.T, opts ...storage.Option) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStorage_PriceSetUpsert(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, found, err := db.LoadPriceSet(ctx, bolt)
	require.NoError(t, err)
	assert.False(t, found)

	first := domain.NewCardPriceSet(bolt, map[string][]domain.PriceQuote{
		"A": {quote("A", "1.50", domain.KindBid, t0)},
	})
	first.UpdatedAt = t0
	require.NoError(t, db.SavePriceSet(ctx, first))

	second := domain.NewCardPriceSet(bolt, map[string][]domain.PriceQuote{
		"B": {quote("B", "2.00", domain.KindBid, t0), quote("B", "3.10", domain.KindOffer, t0)},
	})
	second.UpdatedAt = t0.Add(time.Hour)
	require.NoError(t, db.SavePriceSet(ctx, second))

	got, found, err := db.LoadPriceSet(ctx, bolt)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"B"}, got.Sources())
	require.NotNil(t, got.BestBid)
	assert.True(t, got.BestBid.Amount.Equal(decimal.RequireFromString("2.00")))
	require.NotNil(t, got.BestOffer)
	assert.Equal(t, "B", got.BestOffer.Source)
	assert.True(t, got.UpdatedAt.Equal(second.UpdatedAt))

	all, err := db.ListPriceSets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "UPSERT no duplica filas")
}

func TestSQLiteStorage_FoilIsSeparateRow(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	now := time.Now().UTC()

	foil := bolt
	foil.Foil = domain.FoilRegular

	for _, c := range []domain.CardIdentity{bolt, foil} {
		set := domain.NewCardPriceSet(c, map[string][]domain.PriceQuote{
			"A": {quote("A", "1", domain.KindBid, now)},
		})
		set.UpdatedAt = now
		require.NoError(t, db.SavePriceSet(ctx, set))
	}

	all, err := db.ListPriceSets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStorage_DeleteAndClearPriceSets(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	now := time.Now().UTC()

	old := domain.EmptyPriceSet(bolt)
	old.UpdatedAt = now.Add(-10 * 24 * time.Hour)
	require.NoError(t, db.SavePriceSet(ctx, old))

	counter := domain.CardIdentity{Name: "Counterspell", Set: "Alpha"}
	recent := domain.EmptyPriceSet(counter)
	recent.UpdatedAt = now
	require.NoError(t, db.SavePriceSet(ctx, recent))

	n, err := db.DeletePriceSetsBefore(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, found, err := db.LoadPriceSet(ctx, counter)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, db.ClearPriceSets(ctx))
	all, err := db.ListPriceSets(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStorage_HistoryAppendQueryChronological(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// Insertados desordenados a propósito
	var records []domain.PriceHistoryRecord
	for _, day := range []int{2, 0, 1} {
		ts := t0.Add(time.Duration(day) * 24 * time.Hour)
		set := domain.NewCardPriceSet(bolt, map[string][]domain.PriceQuote{
			"A": {quote("A", decimal.NewFromInt(int64(10+day)).String(), domain.KindBid, ts)},
		})
		records = append(records, domain.NewHistoryRecord(set, "run", ts))
	}
	require.NoError(t, db.Append(ctx, records))

	got, err := db.Query(ctx, bolt, t0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{10, 11, 12}, domain.BestBidSeries(got))
	assert.Equal(t, "A", got[0].BestBidSource)
	assert.Len(t, got[0].Quotes["A"], 1)

	since, err := db.Query(ctx, bolt, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, since, 2)

	other, err := db.Query(ctx, domain.CardIdentity{Name: "X", Set: "Y"}, t0)
	require.NoError(t, err)
	assert.NotNil(t, other)
	assert.Empty(t, other)
}

func TestSQLiteStorage_HistoryRecordWithoutBid(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	now := time.Now().UTC()

	rec := domain.NewHistoryRecord(domain.EmptyPriceSet(bolt), "run", now)
	require.NoError(t, db.Append(ctx, []domain.PriceHistoryRecord{rec}))

	got, err := db.Query(ctx, bolt, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasBestBid)
	assert.Empty(t, domain.BestBidSeries(got))
}

func TestSQLiteStorage_HistoryPruneAndStats(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	counter := domain.CardIdentity{Name: "Counterspell", Set: "Alpha"}
	var records []domain.PriceHistoryRecord
	for i := 0; i < 4; i++ {
		ts := now.Add(-time.Duration(i) * 30 * 24 * time.Hour)
		records = append(records, domain.NewHistoryRecord(domain.EmptyPriceSet(bolt), "r", ts))
	}
	records = append(records, domain.NewHistoryRecord(domain.EmptyPriceSet(counter), "r", now))
	require.NoError(t, db.Append(ctx, records))

	st, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalCards)
	assert.Equal(t, 5, st.TotalRecords)
	assert.InDelta(t, 2.5, st.AverageRecordsPerCard, 1e-9)
	assert.True(t, st.Newest.Equal(now))

	n, err := db.Prune(ctx, now.Add(-45*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := db.Query(ctx, bolt, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteStorage_StatsEmpty(t *testing.T) {
	db := newStore(t)
	st, err := db.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.TotalRecords)
	assert.True(t, st.Oldest.IsZero())
}

func TestSQLiteStorage_ViewExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := newStore(t, storage.WithClock(func() time.Time { return now }))

	require.NoError(t, db.SetView(ctx, "views:dashboard", []byte(`{"a":1}`), time.Hour))

	payload, ok, err := db.GetView(ctx, "views:dashboard")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(payload))

	now = now.Add(2 * time.Hour)
	_, ok, err = db.GetView(ctx, "views:dashboard")
	require.NoError(t, err)
	assert.False(t, ok, "vista expirada se trata como ausente")

	n, err := db.SweepExpiredViews(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteStorage_OpenSweepsExpiredViews(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "buylist.db")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := storage.WithClock(func() time.Time { return now })

	db, err := storage.NewSQLiteStorage(path, clock)
	require.NoError(t, err)
	require.NoError(t, db.SetView(ctx, "views:dashboard", []byte("{}"), time.Hour))
	require.NoError(t, db.SetView(ctx, "views:hot_cards:7", []byte("{}"), 24*time.Hour))
	require.NoError(t, db.Close())

	now = now.Add(2 * time.Hour)
	db, err = storage.NewSQLiteStorage(path, clock)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.SweepExpiredViews(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "la apertura ya purgó la vista expirada")
	_, ok, err := db.GetView(ctx, "views:hot_cards:7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteStorage_ViewDeletePrefix(t *testing.T) {
	ctx := context.Background()
	db := newStore(t)

	for _, k := range []string{"views:hot_cards:7", "views:hot_cards:30", "views:dashboard", "views_other"} {
		require.NoError(t, db.SetView(ctx, k, []byte("{}"), time.Hour))
	}

	require.NoError(t, db.DeleteViewPrefix(ctx, "views:hot_cards"))
	for k, want := range map[string]bool{
		"views:hot_cards:7":  false,
		"views:hot_cards:30": false,
		"views:dashboard":    true,
		"views_other":        true,
	} {
		_, ok, err := db.GetView(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, want, ok, k)
	}

	require.NoError(t, db.DeleteView(ctx, "views:dashboard"))
	_, ok, err := db.GetView(ctx, "views:dashboard")
	require.NoError(t, err)
	assert.False(t, ok)
}
