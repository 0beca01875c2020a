package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteKind distingue bid (el vendor compra) de offer (el vendor vende).
type QuoteKind string

const (
	KindBid   QuoteKind = "bid"
	KindOffer QuoteKind = "offer"
)

// ParseQuoteKind interpreta los price types heredados de los scrapers
// ("bid_cash", "buylist", "offer_nm", "sell", ...).
func ParseQuoteKind(priceType string) (QuoteKind, error) {
	s := strings.ToLower(priceType)
	switch {
	case strings.Contains(s, "bid"), strings.Contains(s, "buylist"):
		return KindBid, nil
	case strings.Contains(s, "offer"), strings.Contains(s, "sell"), strings.Contains(s, "retail"):
		return KindOffer, nil
	}
	return "", fmt.Errorf("domain.ParseQuoteKind: unknown price type %q", priceType)
}

// PriceQuote es el precio que un vendor declara para una carta.
// Inmutable una vez devuelto por la fuente.
type PriceQuote struct {
	Source        string          `json:"source"`
	Amount        decimal.Decimal `json:"amount"`
	Kind          QuoteKind       `json:"kind"`
	Condition     Condition       `json:"condition"`
	QuantityLimit *int            `json:"quantity_limit,omitempty"`
	ObservedAt    time.Time       `json:"observed_at"`
	Notes         string          `json:"notes,omitempty"`
}

// Valid comprueba amount >= 0 y un kind conocido.
func (q PriceQuote) Valid() error {
	if q.Amount.IsNegative() {
		return fmt.Errorf("quote from %s: negative amount %s", q.Source, q.Amount)
	}
	if q.Kind != KindBid && q.Kind != KindOffer {
		return fmt.Errorf("quote from %s: unknown kind %q", q.Source, q.Kind)
	}
	return nil
}

// Float devuelve el importe como float64 para los algoritmos de scoring.
func (q PriceQuote) Float() float64 {
	return q.Amount.InexactFloat64()
}
