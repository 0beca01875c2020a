package domain

// Trend es la dirección del precio en la ventana analizada.
type Trend string

const (
	TrendStrongUp   Trend = "strong_up"
	TrendUp         Trend = "up"
	TrendStable     Trend = "stable"
	TrendDown       Trend = "down"
	TrendStrongDown Trend = "strong_down"
)

// Rising devuelve true para up y strong_up.
func (t Trend) Rising() bool { return t == TrendStrongUp || t == TrendUp }

// Falling devuelve true para down y strong_down.
func (t Trend) Falling() bool { return t == TrendStrongDown || t == TrendDown }

// HotCardScore es el resultado del detector para una carta.
// Se recalcula en cada pasada; solo se cachea como vista derivada.
type HotCardScore struct {
	Card           CardIdentity `json:"card"`
	Score          float64      `json:"score"`
	ChangePercent  float64      `json:"change_percent"`
	ChangeAmount   float64      `json:"change_amount"`
	Trend          Trend        `json:"trend"`
	Sustained      bool         `json:"sustained"`
	Volatility     float64      `json:"volatility"`
	Confidence     float64      `json:"confidence"`
	DataPoints     int          `json:"data_points"`
	WindowDays     int          `json:"window_days"`
	RiskFactors    []string     `json:"risk_factors"`
	Recommendation string       `json:"recommendation"`
}

// Action es la acción recomendada para una carta.
type Action string

const (
	ActionSell Action = "sell"
	ActionBuy  Action = "buy"
	ActionHold Action = "hold"
)

// RiskLevel es el nivel de riesgo de una recomendación.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Recommendation es una recomendación sell/buy/hold para una carta.
type Recommendation struct {
	Card             CardIdentity `json:"card"`
	Action           Action       `json:"action"`
	Confidence       float64      `json:"confidence"`
	ExpectedValue    float64      `json:"expected_value"`
	Potential        float64      `json:"potential"` // profit (sell), savings (buy), growth (hold)
	RiskLevel        RiskLevel    `json:"risk_level"`
	Reasoning        []string     `json:"reasoning"`
	Signals          []string     `json:"signals"`
	Timeframe        string       `json:"timeframe"`
	CurrentPrice     float64      `json:"current_price"`
	AveragePrice     float64      `json:"average_price"`
	DeviationPercent float64      `json:"deviation_percent"`
	Momentum         float64      `json:"momentum"`
	Volatility       float64      `json:"volatility"`
}

// Recommendations agrupa las tres listas, cada una evaluada por separado.
type Recommendations struct {
	Sell    []Recommendation      `json:"sell"`
	Buy     []Recommendation      `json:"buy"`
	Hold    []Recommendation      `json:"hold"`
	Summary RecommendationSummary `json:"summary"`
}

// RecommendationSummary totaliza las tres listas.
type RecommendationSummary struct {
	Total            int     `json:"total"`
	SellCount        int     `json:"sell_count"`
	BuyCount         int     `json:"buy_count"`
	HoldCount        int     `json:"hold_count"`
	SellValue        float64 `json:"sell_value"`
	BuyValue         float64 `json:"buy_value"`
	HoldValue        float64 `json:"hold_value"`
	PotentialProfit  float64 `json:"potential_profit"`
	PotentialSavings float64 `json:"potential_savings"`
	PotentialGrowth  float64 `json:"potential_growth"`
	NetPotential     float64 `json:"net_potential"`
}

// Summarize calcula el resumen a partir de las listas ya recortadas.
func (r Recommendations) Summarize() RecommendationSummary {
	var s RecommendationSummary
	s.SellCount, s.BuyCount, s.HoldCount = len(r.Sell), len(r.Buy), len(r.Hold)
	s.Total = s.SellCount + s.BuyCount + s.HoldCount
	for _, rec := range r.Sell {
		s.SellValue += rec.ExpectedValue
		s.PotentialProfit += rec.Potential
	}
	for _, rec := range r.Buy {
		s.BuyValue += rec.ExpectedValue
		s.PotentialSavings += rec.Potential
	}
	for _, rec := range r.Hold {
		s.HoldValue += rec.ExpectedValue
		s.PotentialGrowth += rec.Potential
	}
	s.NetPotential = s.PotentialProfit + s.PotentialSavings + s.PotentialGrowth
	return s
}
