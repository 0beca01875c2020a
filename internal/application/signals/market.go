package signals

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

// MarketAnalyzer construye la vista de análisis de mercado: spread actual,
// cobertura de vendors y evolución suavizada (EMA) del best bid.
type MarketAnalyzer struct {
	history ports.HistoryStore
	cfg     MarketConfig
	spike   float64
	move    float64
	now     func() time.Time
}

// NewMarketAnalyzer crea el analizador. Los umbrales de trend se toman de hot.
func NewMarketAnalyzer(history ports.HistoryStore, cfg MarketConfig, hot HotConfig, opts ...Option) *MarketAnalyzer {
	o := buildOptions(opts)
	if cfg.EMAPeriod <= 0 {
		cfg.EMAPeriod = DefaultMarketConfig().EMAPeriod
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultMarketConfig().WindowDays
	}
	return &MarketAnalyzer{
		history: history,
		cfg:     cfg,
		spike:   hot.SpikePercent,
		move:    hot.MovePercent,
		now:     o.now,
	}
}

// Analyze devuelve una fila por carta con precios, ordenadas por cambio EMA.
func (m *MarketAnalyzer) Analyze(ctx context.Context, sets []domain.CardPriceSet) domain.MarketAnalysis {
	now := m.now()
	out := domain.MarketAnalysis{
		GeneratedAt: now,
		WindowDays:  m.cfg.WindowDays,
		Cards:       make([]domain.CardMarket, 0, len(sets)),
	}
	since := now.AddDate(0, 0, -m.cfg.WindowDays)

	for _, set := range sets {
		if !set.HasPrices() {
			continue
		}
		row := domain.CardMarket{
			Card:      set.Card,
			BestBid:   set.BestBidFloat(),
			BestOffer: set.BestOfferFloat(),
			Vendors:   len(set.Prices),
			Trend:     domain.TrendStable,
		}
		if row.BestBid > 0 && row.BestOffer > 0 {
			row.Spread = row.BestOffer - row.BestBid
			row.SpreadPercent = row.Spread / row.BestOffer * 100
		}

		records, err := m.history.Query(ctx, set.Card, since)
		if err != nil {
			slog.Warn("market analysis: history query failed", "card", set.Card.String(), "err", err)
		}
		prices := domain.BestBidSeries(records)
		row.DataPoints = len(prices)
		row.VendorTrends = AnalyzeTrends(records)
		if ema := smooth(prices, m.cfg.EMAPeriod); len(ema) >= 2 {
			row.EMA = ema[len(ema)-1]
			row.EMAChange = percentChange(ema[0], ema[len(ema)-1])
			row.Trend = classifyTrend(row.EMAChange, m.spike, m.move)
		} else if len(ema) == 1 {
			row.EMA = ema[0]
		}

		switch {
		case row.Trend.Rising():
			out.Gainers++
		case row.Trend.Falling():
			out.Losers++
		default:
			out.Stable++
		}
		out.Cards = append(out.Cards, row)
	}

	sort.SliceStable(out.Cards, func(i, j int) bool {
		return out.Cards[i].EMAChange > out.Cards[j].EMAChange
	})
	return out
}

// smooth aplica una EMA; con menos puntos que el periodo lo reduce.
func smooth(prices []float64, period int) []float64 {
	if len(prices) == 0 {
		return nil
	}
	if period > len(prices) {
		period = len(prices)
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ema.Compute(helper.SliceToChan(prices)))
}

// AnalyzeTrends resume, por vendor y para el best bid, el primer y último
// precio de la ventana. El precio de un vendor en un registro es su bid más alto.
func AnalyzeTrends(records []domain.PriceHistoryRecord) []domain.VendorTrend {
	series := make(map[string][]float64)
	for _, r := range records {
		for source, quotes := range r.Quotes {
			best := 0.0
			for _, q := range quotes {
				if q.Kind == domain.KindBid && q.Float() > best {
					best = q.Float()
				}
			}
			if best > 0 {
				series[source] = append(series[source], best)
			}
		}
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.VendorTrend, 0, len(names)+1)
	if best := domain.BestBidSeries(records); len(best) > 0 {
		out = append(out, vendorTrend("best", best))
	}
	for _, name := range names {
		out = append(out, vendorTrend(name, series[name]))
	}
	return out
}

func vendorTrend(source string, prices []float64) domain.VendorTrend {
	first, last := prices[0], prices[len(prices)-1]
	return domain.VendorTrend{
		Source:        source,
		First:         first,
		Last:          last,
		Change:        last - first,
		ChangePercent: percentChange(first, last),
		DataPoints:    len(prices),
	}
}
