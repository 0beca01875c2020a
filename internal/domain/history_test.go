package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewHistoryRecord_SnapshotIsIndependent(t *testing.T) {
	set := NewCardPriceSet(testCard(), map[string][]PriceQuote{
		"A": {quote("A", 10, KindBid, t0)},
		"B": {quote("B", 14, KindOffer, t0)},
	})

	rec := NewHistoryRecord(set, "run-1", t0)
	assert.True(t, rec.HasBestBid)
	assert.Equal(t, "A", rec.BestBidSource)
	assert.InDelta(t, 10, rec.BestBidFloat(), 1e-9)

	set.Prices["A"][0].Source = "mutated"
	assert.Equal(t, "A", rec.Quotes["A"][0].Source)
}

func TestBestBidSeries_SkipsRecordsWithoutBid(t *testing.T) {
	withBid := func(v float64, at time.Time) PriceHistoryRecord {
		set := NewCardPriceSet(testCard(), map[string][]PriceQuote{"A": {quote("A", v, KindBid, at)}})
		return NewHistoryRecord(set, "r", at)
	}
	offerOnly := NewHistoryRecord(NewCardPriceSet(testCard(), map[string][]PriceQuote{
		"B": {quote("B", 20, KindOffer, t0)},
	}), "r", t0.Add(time.Hour))

	records := []PriceHistoryRecord{withBid(10, t0), offerOnly, withBid(12, t0.Add(2 * time.Hour))}
	assert.Equal(t, []float64{10, 12}, BestBidSeries(records))
	assert.False(t, offerOnly.HasBestBid)
	assert.Zero(t, offerOnly.BestBidFloat())
	assert.Empty(t, BestBidSeries(nil))
}
