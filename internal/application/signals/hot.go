package signals

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

// Option configura dependencias opcionales de los componentes de signals.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// HotCardDetector puntúa ventanas recientes del histórico buscando
// movimientos de precio bruscos y sostenidos.
type HotCardDetector struct {
	history ports.HistoryStore
	cfg     HotConfig
	now     func() time.Time
}

// NewHotCardDetector crea el detector sobre el histórico dado.
func NewHotCardDetector(history ports.HistoryStore, cfg HotConfig, opts ...Option) *HotCardDetector {
	o := buildOptions(opts)
	return &HotCardDetector{history: history, cfg: cfg, now: o.now}
}

// Detect puntúa las cartas y devuelve solo las que superan el umbral,
// ordenadas por score descendente.
func (d *HotCardDetector) Detect(ctx context.Context, sets []domain.CardPriceSet, windowDays int) []domain.HotCardScore {
	return d.DetectHoldings(ctx, domain.HoldingsFromSets(sets), windowDays)
}

// DetectHoldings es Detect con la condición de cada carta, que aporta una
// etiqueta de riesgo.
func (d *HotCardDetector) DetectHoldings(ctx context.Context, holdings []domain.Holding, windowDays int) []domain.HotCardScore {
	since := d.now().AddDate(0, 0, -windowDays)

	hot := make([]domain.HotCardScore, 0)
	for _, h := range holdings {
		card := h.Set.Card
		records, err := d.history.Query(ctx, card, since)
		if err != nil {
			slog.Warn("hot detector: history query failed", "card", card.String(), "err", err)
			continue
		}

		score, err := d.Score(card, h.Condition, domain.BestBidSeries(records))
		if err != nil {
			slog.Debug("hot detector: card skipped", "card", card.String(), "err", err)
			continue
		}
		score.WindowDays = windowDays
		if score.Score >= d.cfg.ScoreThreshold {
			hot = append(hot, score)
		}
	}

	sort.SliceStable(hot, func(i, j int) bool {
		if hot[i].Score != hot[j].Score {
			return hot[i].Score > hot[j].Score
		}
		return hot[i].Card.Key() < hot[j].Card.Key()
	})

	slog.Info("hot card detection complete",
		"cards", len(holdings),
		"hot", len(hot),
		"window_days", windowDays,
	)
	return hot
}

// movement es el análisis de la serie de precios de una carta.
type movement struct {
	first, last   float64
	change        float64
	changePercent float64
	volatility    float64
	trend         domain.Trend
	sustained     bool
	confidence    float64
	points        int
}

// Score analiza una serie cronológica de best bids. Devuelve
// domain.ErrInsufficientHistory si hay menos puntos que MinPoints.
func (d *HotCardDetector) Score(card domain.CardIdentity, cond domain.Condition, prices []float64) (domain.HotCardScore, error) {
	if len(prices) < d.cfg.MinPoints || len(prices) < 2 {
		return domain.HotCardScore{}, fmt.Errorf("%w: %d points, need %d",
			domain.ErrInsufficientHistory, len(prices), d.cfg.MinPoints)
	}

	m := d.analyze(prices)
	score := d.hotScore(m, card)

	return domain.HotCardScore{
		Card:           card,
		Score:          score,
		ChangePercent:  m.changePercent,
		ChangeAmount:   m.change,
		Trend:          m.trend,
		Sustained:      m.sustained,
		Volatility:     m.volatility,
		Confidence:     m.confidence,
		DataPoints:     m.points,
		RiskFactors:    d.riskFactors(m, card, cond),
		Recommendation: hotRecommendation(m.trend, score),
	}, nil
}

func (d *HotCardDetector) analyze(prices []float64) movement {
	m := movement{
		first:  prices[0],
		last:   prices[len(prices)-1],
		points: len(prices),
	}
	m.change = m.last - m.first
	m.changePercent = percentChange(m.first, m.last)
	m.volatility = stdev(stepChanges(prices))
	m.trend = d.classify(m.changePercent)
	m.sustained = d.isSustained(prices, m.trend)
	m.confidence = math.Min(1, float64(len(prices))/float64(d.cfg.ConfidencePoints))
	return m
}

// classify asigna la dirección del trend según el cambio %.
func (d *HotCardDetector) classify(pct float64) domain.Trend {
	return classifyTrend(pct, d.cfg.SpikePercent, d.cfg.MovePercent)
}

func classifyTrend(pct, spike, move float64) domain.Trend {
	switch {
	case pct > spike:
		return domain.TrendStrongUp
	case pct > move:
		return domain.TrendUp
	case pct < -spike:
		return domain.TrendStrongDown
	case pct < -move:
		return domain.TrendDown
	}
	return domain.TrendStable
}

// isSustained: al menos SustainedRatio de los pasos no van contra el trend.
// Un trend stable nunca es sostenido.
func (d *HotCardDetector) isSustained(prices []float64, trend domain.Trend) bool {
	if len(prices) < d.cfg.SustainedMinPoints || len(prices) < 2 {
		return false
	}
	if !trend.Rising() && !trend.Falling() {
		return false
	}

	steps := len(prices) - 1
	with := 0
	for i := 1; i < len(prices); i++ {
		if trend.Rising() && prices[i] >= prices[i-1] {
			with++
		}
		if trend.Falling() && prices[i] <= prices[i-1] {
			with++
		}
	}
	return float64(with) >= d.cfg.SustainedRatio*float64(steps)
}

// hotScore: suma ponderada de movimiento, sostenimiento, confianza y
// volatilidad, multiplicada por (1 - riesgo) y acotada a [0,1].
func (d *HotCardDetector) hotScore(m movement, card domain.CardIdentity) float64 {
	c := d.cfg

	move := math.Abs(m.changePercent)
	var priceScore float64
	if move >= c.SpikePercent {
		priceScore = math.Min(1, move/c.PriceMoveCeiling)
	} else if c.SpikePercent > 0 {
		priceScore = move / c.SpikePercent
	}

	base := priceScore * c.WeightPrice
	if m.sustained {
		base += c.WeightSustained
	}
	base += m.confidence * c.WeightConfidence
	base += d.volatilityScore(m.volatility) * c.WeightVolatility

	return clamp01(base * (1 - d.riskAdjustment(m, card)))
}

// volatilityScore vale 1 dentro del rango ideal y decae fuera de él.
func (d *HotCardDetector) volatilityScore(v float64) float64 {
	c := d.cfg
	switch {
	case v >= c.VolatilityLow && v <= c.VolatilityHigh:
		return 1
	case v < c.VolatilityLow:
		if c.VolatilityLow <= 0 {
			return 1
		}
		return v / c.VolatilityLow
	default:
		if c.VolatilityDecay <= 0 {
			return 0
		}
		return math.Max(0, 1-(v-c.VolatilityHigh)/c.VolatilityDecay)
	}
}

// riskAdjustment acumula penalizaciones fijas, con tope 1.
func (d *HotCardDetector) riskAdjustment(m movement, card domain.CardIdentity) float64 {
	c := d.cfg
	var risk float64
	if m.volatility > c.HighVolatility {
		risk += c.RiskHighVolatility
	}
	if m.points < c.LowVolumePoints {
		risk += c.RiskLowVolume
	}
	set := strings.ToLower(card.Set)
	if containsAny(set, c.ReprintKeywords) {
		risk += c.RiskRecentReprint
	}
	if containsAny(set, c.RotationKeywords) {
		risk += c.RiskFormatRotation
	}
	return math.Min(1, risk)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func (d *HotCardDetector) riskFactors(m movement, card domain.CardIdentity, cond domain.Condition) []string {
	factors := make([]string, 0)
	if m.volatility > d.cfg.HighVolatility {
		factors = append(factors, "High price volatility")
	}
	if m.points < d.cfg.LowVolumePoints {
		factors = append(factors, "Limited price data")
	}
	if !m.sustained {
		factors = append(factors, "Unstable price movement")
	}
	if m.confidence < d.cfg.LowConfidenceLabel {
		factors = append(factors, "Low confidence in trend")
	}
	if card.IsFoil() {
		factors = append(factors, "Foil cards have higher volatility")
	}
	if cond != "" && cond != domain.ConditionNM {
		factors = append(factors, "Condition affects price stability")
	}
	return factors
}

func hotRecommendation(trend domain.Trend, score float64) string {
	switch {
	case score >= 0.8:
		if trend.Rising() {
			return "Strong buy - significant upward momentum"
		}
		return "Strong sell - significant downward momentum"
	case score >= 0.6:
		if trend.Rising() {
			return "Consider buying - positive trend"
		}
		return "Consider selling - negative trend"
	case score >= 0.4:
		return "Monitor closely - moderate movement"
	}
	return "Hold - minimal movement"
}
