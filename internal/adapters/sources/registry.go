package sources

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/buylist/config"
	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

// FromConfig construye las fuentes habilitadas en la configuración.
// Los nombres deben ser únicos: el agregador indexa los resultados por fuente.
func FromConfig(cfg config.SourcesConfig) ([]ports.QuoteSource, error) {
	var out []ports.QuoteSource
	seen := make(map[string]bool)

	add := func(src ports.QuoteSource) error {
		if seen[src.Name()] {
			return fmt.Errorf("sources.FromConfig: duplicate source %q", src.Name())
		}
		seen[src.Name()] = true
		out = append(out, src)
		return nil
	}

	for _, sc := range cfg.Static {
		quotes, err := staticQuotes(sc.Quotes)
		if err != nil {
			return nil, fmt.Errorf("sources.FromConfig: %s: %w", sc.Name, err)
		}
		src, err := NewStaticSource(sc.Name, quotes)
		if err != nil {
			return nil, err
		}
		if err := add(src); err != nil {
			return nil, err
		}
	}

	if cfg.Scryfall.Enabled {
		src := NewScryfallSource(ScryfallConfig{
			BaseURL:    cfg.Scryfall.BaseURL,
			RatePerSec: cfg.Scryfall.RatePerSec,
			Timeout:    cfg.Scryfall.Timeout,
			Retries:    cfg.Scryfall.Retries,
		})
		if err := add(src); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type rawPrice struct {
	raw  string
	kind domain.QuoteKind
}

// staticQuotes expande cada fila (bid, offer y price_type) en cotizaciones.
func staticQuotes(rows []config.StaticQuoteConfig) ([]StaticQuote, error) {
	var out []StaticQuote
	for _, row := range rows {
		cond := domain.Condition(row.Condition)
		if cond == "" {
			cond = domain.ConditionNM
		}
		var limit *int
		if row.QuantityLimit > 0 {
			l := row.QuantityLimit
			limit = &l
		}
		prices := []rawPrice{
			{row.Bid, domain.KindBid},
			{row.Offer, domain.KindOffer},
		}
		if row.PriceType != "" {
			kind, err := domain.ParseQuoteKind(row.PriceType)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", row.Card.Key(), err)
			}
			prices = append(prices, rawPrice{row.Price, kind})
		}
		for _, p := range prices {
			if p.raw == "" {
				continue
			}
			amount, err := decimal.NewFromString(p.raw)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", row.Card.Key(), p.kind, err)
			}
			out = append(out, StaticQuote{
				Card:          row.Card,
				Kind:          p.kind,
				Amount:        amount,
				Condition:     cond,
				QuantityLimit: limit,
			})
		}
	}
	return out, nil
}
