package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistoryRecord es una fila del histórico: una por CardPriceSet y por
// ejecución de agregación. Nunca se modifica tras insertarse.
type PriceHistoryRecord struct {
	Card          CardIdentity            `json:"card"`
	RunID         string                  `json:"run_id"`
	Timestamp     time.Time               `json:"timestamp"`
	HasBestBid    bool                    `json:"has_best_bid"`
	BestBidAmount decimal.Decimal         `json:"best_bid_amount"`
	BestBidSource string                  `json:"best_bid_source,omitempty"`
	Quotes        map[string][]PriceQuote `json:"quotes"`
}

// NewHistoryRecord toma un snapshot del set en el instante dado.
func NewHistoryRecord(set CardPriceSet, runID string, ts time.Time) PriceHistoryRecord {
	snap := set.Clone()
	rec := PriceHistoryRecord{
		Card:      set.Card,
		RunID:     runID,
		Timestamp: ts,
		Quotes:    snap.Prices,
	}
	if snap.BestBid != nil {
		rec.HasBestBid = true
		rec.BestBidAmount = snap.BestBid.Amount
		rec.BestBidSource = snap.BestBid.Source
	}
	return rec
}

// BestBidFloat devuelve el best bid como float64 (0 si no había bid).
func (r PriceHistoryRecord) BestBidFloat() float64 {
	if !r.HasBestBid {
		return 0
	}
	return r.BestBidAmount.InexactFloat64()
}

// BestBidSeries extrae la serie de best bids (> 0) en orden cronológico.
// Los registros sin bid no aportan punto.
func BestBidSeries(records []PriceHistoryRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		if v := r.BestBidFloat(); v > 0 {
			out = append(out, v)
		}
	}
	return out
}

// HistoryStats resume el contenido del histórico.
type HistoryStats struct {
	TotalCards            int       `json:"total_cards"`
	TotalRecords          int       `json:"total_records"`
	Oldest                time.Time `json:"oldest"`
	Newest                time.Time `json:"newest"`
	AverageRecordsPerCard float64   `json:"average_records_per_card"`
}
