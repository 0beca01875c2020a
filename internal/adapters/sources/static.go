package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// StaticQuote es una cotización fija de una tabla de referencia.
type StaticQuote struct {
	Card          domain.CardIdentity
	Kind          domain.QuoteKind
	Amount        decimal.Decimal
	Condition     domain.Condition
	QuantityLimit *int
	Notes         string
}

// StaticSource sirve cotizaciones desde una tabla en memoria (buylist
// exportada de un vendedor, precios de referencia manuales).
// El match es exacto por CardIdentity.Key().
type StaticSource struct {
	name   string
	quotes map[string][]StaticQuote
	now    func() time.Time
}

// NewStaticSource crea la fuente. Descarta importes no positivos.
func NewStaticSource(name string, quotes []StaticQuote) (*StaticSource, error) {
	if name == "" {
		return nil, fmt.Errorf("sources.NewStaticSource: empty name")
	}
	s := &StaticSource{
		name:   name,
		quotes: make(map[string][]StaticQuote),
		now:    time.Now,
	}
	for _, q := range quotes {
		if err := q.Card.Validate(); err != nil {
			return nil, fmt.Errorf("sources.NewStaticSource: %s: %w", name, err)
		}
		if !q.Amount.IsPositive() {
			continue
		}
		key := q.Card.Key()
		s.quotes[key] = append(s.quotes[key], q)
	}
	return s, nil
}

func (s *StaticSource) Name() string { return s.name }

// Quote devuelve las cotizaciones de la carta; lista vacía si no está en la tabla.
func (s *StaticSource) Quote(ctx context.Context, card domain.CardIdentity) ([]domain.PriceQuote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := s.quotes[card.Key()]
	now := s.now()
	out := make([]domain.PriceQuote, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.PriceQuote{
			Source:        s.name,
			Amount:        e.Amount,
			Kind:          e.Kind,
			Condition:     e.Condition,
			QuantityLimit: e.QuantityLimit,
			ObservedAt:    now,
			Notes:         e.Notes,
		})
	}
	return out, nil
}
