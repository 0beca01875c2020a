// Package signals deriva señales de trading a partir del histórico de
// precios: hot cards, recomendaciones sell/buy/hold y análisis de mercado.
//
// Todos los umbrales viven en estructuras de configuración con nombre para
// que los tests puedan fijarlos de forma determinista.
package signals

// HotConfig contiene los umbrales del detector de hot cards.
type HotConfig struct {
	SpikePercent       float64 // cambio % para strong_up/strong_down
	MovePercent        float64 // cambio % para up/down
	SustainedMinPoints int     // puntos mínimos para evaluar movimiento sostenido
	SustainedRatio     float64 // fracción de pasos en la dirección del trend
	MinPoints          int     // puntos mínimos en la ventana; por debajo se omite la carta
	ScoreThreshold     float64 // score mínimo para devolver la carta como hot
	PriceMoveCeiling   float64 // movimiento % que da el máximo de la componente de precio
	ConfidencePoints   int     // puntos con los que la confianza llega a 1
	VolatilityLow      float64 // inicio del rango ideal de volatilidad
	VolatilityHigh     float64 // fin del rango ideal de volatilidad
	VolatilityDecay    float64 // puntos de volatilidad sobre el rango hasta llegar a 0
	WeightPrice        float64
	WeightSustained    float64
	WeightConfidence   float64
	WeightVolatility   float64
	HighVolatility     float64 // volatilidad que dispara la penalización
	LowVolumePoints    int     // por debajo de estos puntos se penaliza
	RiskHighVolatility float64
	RiskLowVolume      float64
	RiskRecentReprint  float64
	RiskFormatRotation float64
	ReprintKeywords    []string
	RotationKeywords   []string
	LowConfidenceLabel float64 // confianza por debajo de la cual se etiqueta el riesgo
}

// DefaultHotConfig devuelve los umbrales por defecto.
func DefaultHotConfig() HotConfig {
	return HotConfig{
		SpikePercent:       15,
		MovePercent:        5,
		SustainedMinPoints: 3,
		SustainedRatio:     0.7,
		MinPoints:          5,
		ScoreThreshold:     0.7,
		PriceMoveCeiling:   50,
		ConfidencePoints:   10,
		VolatilityLow:      5,
		VolatilityHigh:     20,
		VolatilityDecay:    30,
		WeightPrice:        0.4,
		WeightSustained:    0.25,
		WeightConfidence:   0.2,
		WeightVolatility:   0.15,
		HighVolatility:     25,
		LowVolumePoints:    5,
		RiskHighVolatility: 0.3,
		RiskLowVolume:      0.2,
		RiskRecentReprint:  0.4,
		RiskFormatRotation: 0.3,
		ReprintKeywords:    []string{"reprint", "remastered", "anthology"},
		RotationKeywords:   []string{"core set", "standard"},
		LowConfidenceLabel: 0.5,
	}
}

// RecommendConfig contiene los umbrales del motor de recomendaciones.
type RecommendConfig struct {
	HistoryDays      int // ventana de histórico para sell/buy
	HoldHistoryDays  int // ventana de histórico para hold
	MinRecords       int // registros mínimos para sell/buy
	MinPrices        int // precios válidos mínimos para sell/buy
	HoldMinRecords   int
	HoldMinPrices    int
	MaxPerAction     int
	MomentumWindow   int // puntos recientes para el momentum
	LongTrendWindow  int // puntos recientes para la tendencia de largo plazo
	SellAbovePercent float64
	BuyBelowPercent  float64 // negativo
	NearExtremeRatio float64 // 0.05: dentro del 5% del máximo/mínimo
	MomentumPercent  float64
	SellGate         float64
	BuyGate          float64
	HoldGate         float64
	StableBand       float64 // |desviación| para considerar el precio estable
	SellVolatility   float64 // volatilidad que suma a sell
	BuyVolatility    float64 // volatilidad por debajo de la cual suma a buy
	HoldVolatility   float64 // volatilidad por debajo de la cual suma a hold
}

// DefaultRecommendConfig devuelve los umbrales por defecto.
func DefaultRecommendConfig() RecommendConfig {
	return RecommendConfig{
		HistoryDays:      30,
		HoldHistoryDays:  30,
		MinRecords:       3,
		MinPrices:        2,
		HoldMinRecords:   5,
		HoldMinPrices:    3,
		MaxPerAction:     20,
		MomentumWindow:   3,
		LongTrendWindow:  7,
		SellAbovePercent: 20,
		BuyBelowPercent:  -15,
		NearExtremeRatio: 0.05,
		MomentumPercent:  5,
		SellGate:         0.3,
		BuyGate:          0.3,
		HoldGate:         0.4,
		StableBand:       10,
		SellVolatility:   20,
		BuyVolatility:    10,
		HoldVolatility:   15,
	}
}

// MarketConfig contiene los parámetros del análisis de mercado.
type MarketConfig struct {
	WindowDays int
	EMAPeriod  int
}

// DefaultMarketConfig devuelve los parámetros por defecto.
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{WindowDays: 30, EMAPeriod: 3}
}
