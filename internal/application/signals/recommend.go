package signals

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

// RecommendationEngine clasifica cada carta como sell, buy o hold a partir
// de su histórico, moderado por el resultado del detector de hot cards.
type RecommendationEngine struct {
	history ports.HistoryStore
	cfg     RecommendConfig
	now     func() time.Time
}

// NewRecommendationEngine crea el motor sobre el histórico dado.
func NewRecommendationEngine(history ports.HistoryStore, cfg RecommendConfig, opts ...Option) *RecommendationEngine {
	o := buildOptions(opts)
	return &RecommendationEngine{history: history, cfg: cfg, now: o.now}
}

// Recommend evalúa los sets como holdings de una unidad.
func (e *RecommendationEngine) Recommend(ctx context.Context, sets []domain.CardPriceSet, hot []domain.HotCardScore) domain.Recommendations {
	return e.RecommendHoldings(ctx, domain.HoldingsFromSets(sets), hot)
}

// RecommendHoldings evalúa cada carta contra las tres acciones de forma
// independiente: una carta puede aparecer en más de una lista. Cada lista
// se ordena por confianza y luego valor esperado, y se recorta a MaxPerAction.
func (e *RecommendationEngine) RecommendHoldings(ctx context.Context, holdings []domain.Holding, hot []domain.HotCardScore) domain.Recommendations {
	hotKeys := make(map[string]bool, len(hot))
	for _, h := range hot {
		hotKeys[h.Card.Key()] = true
	}

	var recs domain.Recommendations
	for _, h := range holdings {
		if ctx.Err() != nil {
			break
		}
		sell, buy, hold := e.evaluate(ctx, h, hotKeys[h.Set.Card.Key()])
		if sell != nil {
			recs.Sell = append(recs.Sell, *sell)
		}
		if buy != nil {
			recs.Buy = append(recs.Buy, *buy)
		}
		if hold != nil {
			recs.Hold = append(recs.Hold, *hold)
		}
	}

	recs.Sell = e.rank(recs.Sell)
	recs.Buy = e.rank(recs.Buy)
	recs.Hold = e.rank(recs.Hold)
	recs.Summary = recs.Summarize()

	slog.Info("recommendations generated",
		"cards", len(holdings),
		"sell", len(recs.Sell),
		"buy", len(recs.Buy),
		"hold", len(recs.Hold),
	)
	return recs
}

func (e *RecommendationEngine) rank(list []domain.Recommendation) []domain.Recommendation {
	if list == nil {
		list = make([]domain.Recommendation, 0)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Confidence != list[j].Confidence {
			return list[i].Confidence > list[j].Confidence
		}
		return list[i].ExpectedValue > list[j].ExpectedValue
	})
	if e.cfg.MaxPerAction > 0 && len(list) > e.cfg.MaxPerAction {
		list = list[:e.cfg.MaxPerAction]
	}
	return list
}

// priceStats son las métricas derivadas del histórico de una carta.
type priceStats struct {
	current    float64
	avg        float64
	max        float64
	min        float64
	deviation  float64 // % del precio actual respecto a la media
	momentum   float64 // % de los últimos puntos respecto a los anteriores
	longTrend  float64
	volatility float64 // desviación de los cambios % absolutos
}

func (e *RecommendationEngine) stats(current float64, prices []float64) priceStats {
	s := priceStats{
		current:    current,
		avg:        mean(prices),
		max:        maxOf(prices),
		min:        minOf(prices),
		volatility: stdev(absStepChanges(prices)),
	}
	s.deviation = percentChange(s.avg, current)

	w := e.cfg.MomentumWindow
	if w > 0 && len(prices) > 0 {
		recent := prices[max(0, len(prices)-w):]
		older := prices
		if len(prices) > w {
			older = prices[:len(prices)-w]
		}
		s.momentum = percentChange(mean(older), mean(recent))
	}

	lw := e.cfg.LongTrendWindow
	if lw > 0 && len(prices) > lw {
		s.longTrend = percentChange(mean(prices[:len(prices)-lw]), mean(prices[len(prices)-lw:]))
	}
	return s
}

// evaluate calcula las tres recomendaciones posibles de una carta.
// Devuelve nil para las que no superan su umbral.
func (e *RecommendationEngine) evaluate(ctx context.Context, h domain.Holding, isHot bool) (sell, buy, hold *domain.Recommendation) {
	card := h.Set.Card
	current := h.Set.BestBidFloat()
	if current <= 0 {
		return nil, nil, nil
	}
	qty := h.Quantity
	if qty < 1 {
		qty = 1
	}

	now := e.now()
	window := max(e.cfg.HistoryDays, e.cfg.HoldHistoryDays)
	records, err := e.history.Query(ctx, card, now.AddDate(0, 0, -window))
	if err != nil {
		slog.Warn("recommendations: history query failed", "card", card.String(), "err", err)
		return nil, nil, nil
	}

	short := since(records, now.AddDate(0, 0, -e.cfg.HistoryDays))
	if prices := domain.BestBidSeries(short); len(short) >= e.cfg.MinRecords && len(prices) >= e.cfg.MinPrices {
		s := e.stats(current, prices)
		sell = e.sell(card, s, qty, isHot)
		buy = e.buy(card, s, isHot)
	} else {
		slog.Debug("recommendations: insufficient history for sell/buy",
			"card", card.String(), "records", len(short), "prices", len(prices))
	}

	long := since(records, now.AddDate(0, 0, -e.cfg.HoldHistoryDays))
	if prices := domain.BestBidSeries(long); len(long) >= e.cfg.HoldMinRecords && len(prices) >= e.cfg.HoldMinPrices {
		hold = e.hold(card, e.stats(current, prices), qty, isHot)
	}
	return sell, buy, hold
}

func since(records []domain.PriceHistoryRecord, cutoff time.Time) []domain.PriceHistoryRecord {
	for i, r := range records {
		if !r.Timestamp.Before(cutoff) {
			return records[i:]
		}
	}
	return nil
}

func (e *RecommendationEngine) sell(card domain.CardIdentity, s priceStats, qty int, isHot bool) *domain.Recommendation {
	c := e.cfg
	rec := newRecommendation(card, domain.ActionSell, s)

	if s.deviation > c.SellAbovePercent {
		rec.add("high_price", 0.3, fmt.Sprintf("Price is %.1f%% above average", s.deviation))
	}
	if s.current >= s.max*(1-c.NearExtremeRatio) {
		rec.add("near_peak", 0.2, "Price near historical high")
	}
	if s.momentum < -c.MomentumPercent {
		rec.add("negative_momentum", 0.2, fmt.Sprintf("Negative momentum: %.1f%%", s.momentum))
	}
	if isHot {
		rec.add("hot_card", 0.1, "Currently a hot card - consider selling high")
	}
	if s.volatility > c.SellVolatility {
		rec.add("high_volatility", 0.1, fmt.Sprintf("High volatility (%.1f%%) - good selling opportunity", s.volatility))
	}

	if rec.score() < c.SellGate {
		return nil
	}
	rec.ExpectedValue = s.current * float64(qty)
	rec.Potential = (s.current - s.avg) * float64(qty)
	rec.RiskLevel = sellRisk(card, s)
	rec.Timeframe = "immediate"
	return rec.finish()
}

func (e *RecommendationEngine) buy(card domain.CardIdentity, s priceStats, isHot bool) *domain.Recommendation {
	c := e.cfg
	rec := newRecommendation(card, domain.ActionBuy, s)

	if s.deviation < c.BuyBelowPercent {
		rec.add("low_price", 0.3, fmt.Sprintf("Price is %.1f%% below average", math.Abs(s.deviation)))
	}
	if s.current <= s.min*(1+c.NearExtremeRatio) {
		rec.add("near_bottom", 0.2, "Price near historical low")
	}
	if s.momentum > c.MomentumPercent {
		rec.add("positive_momentum", 0.2, fmt.Sprintf("Positive momentum: %.1f%%", s.momentum))
	}
	if isHot && s.deviation < 0 {
		rec.add("hot_card_opportunity", 0.2, "Hot card at discounted price")
	}
	if s.volatility < c.BuyVolatility {
		rec.add("low_volatility", 0.1, fmt.Sprintf("Low volatility (%.1f%%) - stable investment", s.volatility))
	}

	if rec.score() < c.BuyGate {
		return nil
	}
	// El valor esperado de una compra es una sola copia.
	rec.ExpectedValue = s.current
	if s.current < s.avg {
		rec.Potential = s.avg - s.current
	}
	rec.RiskLevel = buyRisk(card, s)
	rec.Timeframe = "1-3 months"
	return rec.finish()
}

func (e *RecommendationEngine) hold(card domain.CardIdentity, s priceStats, qty int, isHot bool) *domain.Recommendation {
	c := e.cfg
	rec := newRecommendation(card, domain.ActionHold, s)

	if math.Abs(s.deviation) < c.StableBand {
		rec.add("stable_price", 0.3, "Price stable near historical average")
	}
	if s.longTrend > c.MomentumPercent {
		rec.add("positive_trend", 0.3, fmt.Sprintf("Positive long-term trend: %.1f%%", s.longTrend))
	}
	if isHot && s.longTrend > 0 {
		rec.add("hot_card_hold", 0.2, "Hot card with strong fundamentals - hold for growth")
	}
	if s.volatility < c.HoldVolatility {
		rec.add("low_volatility", 0.2, fmt.Sprintf("Low volatility (%.1f%%) - stable hold", s.volatility))
	}

	if rec.score() < c.HoldGate {
		return nil
	}
	rec.ExpectedValue = s.current * float64(qty)
	if s.longTrend > 0 {
		rec.Potential = s.longTrend / 100 * rec.ExpectedValue
	}
	rec.Momentum = s.longTrend
	rec.RiskLevel = holdRisk(card, s)
	rec.Timeframe = "3-12 months"
	return rec.finish()
}

// draft acumula señales mientras se evalúa una acción.
type draft struct {
	domain.Recommendation
	confidence float64
}

func newRecommendation(card domain.CardIdentity, action domain.Action, s priceStats) *draft {
	return &draft{Recommendation: domain.Recommendation{
		Card:             card,
		Action:           action,
		CurrentPrice:     s.current,
		AveragePrice:     s.avg,
		DeviationPercent: s.deviation,
		Momentum:         s.momentum,
		Volatility:       s.volatility,
		Reasoning:        make([]string, 0),
		Signals:          make([]string, 0),
	}}
}

func (d *draft) add(signal string, weight float64, reason string) {
	d.Signals = append(d.Signals, signal)
	d.Reasoning = append(d.Reasoning, reason)
	d.confidence += weight
}

// score es la confianza acumulada redondeada a 3 decimales y con tope 1.
func (d *draft) score() float64 {
	return math.Min(1, math.Round(d.confidence*1000)/1000)
}

func (d *draft) finish() *domain.Recommendation {
	d.Confidence = d.score()
	rec := d.Recommendation
	return &rec
}

func sellRisk(card domain.CardIdentity, s priceStats) domain.RiskLevel {
	score := 0
	switch {
	case s.deviation > 50:
		score += 2
	case s.deviation > 30:
		score++
	}
	score += volatilityRisk(s.volatility)
	return foilTier(card, riskBand(score, 4, 2))
}

func buyRisk(card domain.CardIdentity, s priceStats) domain.RiskLevel {
	score := 0
	switch {
	case s.deviation < -50:
		score += 2
	case s.deviation < -30:
		score++
	}
	score += volatilityRisk(s.volatility)
	return foilTier(card, riskBand(score, 4, 2))
}

func holdRisk(card domain.CardIdentity, s priceStats) domain.RiskLevel {
	score := 0
	if math.Abs(s.deviation) > 30 {
		score++
	}
	switch {
	case s.volatility > 25:
		score += 2
	case s.volatility > 15:
		score++
	}
	return foilTier(card, riskBand(score, 3, 1))
}

func volatilityRisk(v float64) int {
	switch {
	case v > 30:
		return 2
	case v > 20:
		return 1
	}
	return 0
}

// foilTier sube un nivel el riesgo de las foils, con tope en high.
func foilTier(card domain.CardIdentity, level domain.RiskLevel) domain.RiskLevel {
	if !card.IsFoil() {
		return level
	}
	switch level {
	case domain.RiskLow:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

func riskBand(score, high, medium int) domain.RiskLevel {
	switch {
	case score >= high:
		return domain.RiskHigh
	case score >= medium:
		return domain.RiskMedium
	}
	return domain.RiskLow
}
