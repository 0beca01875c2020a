package domain

import (
	"sort"
	"time"
)

// Holding combina el último CardPriceSet de una carta con lo que se posee
// de ella en la colección.
type Holding struct {
	Set       CardPriceSet `json:"set"`
	Quantity  int          `json:"quantity"`
	Condition Condition    `json:"condition"`
}

// HoldingsFromSets envuelve sets sueltos como holdings de una unidad NM.
func HoldingsFromSets(sets []CardPriceSet) []Holding {
	out := make([]Holding, len(sets))
	for i, s := range sets {
		out[i] = Holding{Set: s, Quantity: 1, Condition: ConditionNM}
	}
	return out
}

// Sets devuelve los CardPriceSet de los holdings en el mismo orden.
func Sets(holdings []Holding) []CardPriceSet {
	out := make([]CardPriceSet, len(holdings))
	for i, h := range holdings {
		out[i] = h.Set
	}
	return out
}

// CollectionSummary es el agregado de valor de la colección.
type CollectionSummary struct {
	TotalCards         int                `json:"total_cards"`
	TotalQuantity      int                `json:"total_quantity"`
	CardsWithPrices    int                `json:"cards_with_prices"`
	CardsWithoutPrices int                `json:"cards_without_prices"`
	ValueByVendor      map[string]float64 `json:"value_by_vendor"`
	BestVendor         string             `json:"best_vendor,omitempty"`
	BestVendorValue    float64            `json:"best_vendor_value"`
	CollectionValue    float64            `json:"collection_value"`
}

// Summarize calcula el resumen de la colección.
//
// ValueByVendor suma, por vendor, su bid más alto de cada carta × cantidad.
// CollectionValue suma el best bid × cantidad, es decir, vendiendo cada
// carta al mejor comprador.
func Summarize(holdings []Holding) CollectionSummary {
	sum := CollectionSummary{ValueByVendor: make(map[string]float64)}
	for _, h := range holdings {
		qty := h.Quantity
		if qty < 1 {
			qty = 1
		}
		sum.TotalCards++
		sum.TotalQuantity += qty
		if h.Set.HasPrices() {
			sum.CardsWithPrices++
		} else {
			sum.CardsWithoutPrices++
		}
		for source, quotes := range h.Set.Prices {
			best := 0.0
			for _, q := range quotes {
				if q.Kind == KindBid && q.Float() > best {
					best = q.Float()
				}
			}
			if best > 0 {
				sum.ValueByVendor[source] += best * float64(qty)
			}
		}
		sum.CollectionValue += h.Set.BestBidFloat() * float64(qty)
	}

	vendors := make([]string, 0, len(sum.ValueByVendor))
	for v := range sum.ValueByVendor {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	for _, v := range vendors {
		if sum.ValueByVendor[v] > sum.BestVendorValue {
			sum.BestVendor = v
			sum.BestVendorValue = sum.ValueByVendor[v]
		}
	}
	return sum
}

// CardView es la fila por carta del dashboard.
type CardView struct {
	Card      CardIdentity `json:"card"`
	Quantity  int          `json:"quantity"`
	BestBid   *PriceQuote  `json:"best_bid,omitempty"`
	BestOffer *PriceQuote  `json:"best_offer,omitempty"`
	Vendors   int          `json:"vendors"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Dashboard es la vista principal que reciben los consumidores.
type Dashboard struct {
	GeneratedAt     time.Time             `json:"generated_at"`
	Summary         CollectionSummary     `json:"summary"`
	Cards           []CardView            `json:"cards"`
	HotCards        []HotCardScore        `json:"hot_cards"`
	Recommendations RecommendationSummary `json:"recommendations"`
}

// NewDashboard arma el dashboard a partir de holdings, hot cards y
// recomendaciones ya calculadas.
func NewDashboard(now time.Time, holdings []Holding, hot []HotCardScore, recs Recommendations) Dashboard {
	d := Dashboard{
		GeneratedAt:     now,
		Summary:         Summarize(holdings),
		Cards:           make([]CardView, 0, len(holdings)),
		HotCards:        hot,
		Recommendations: recs.Summary,
	}
	for _, h := range holdings {
		d.Cards = append(d.Cards, CardView{
			Card:      h.Set.Card,
			Quantity:  h.Quantity,
			BestBid:   h.Set.BestBid,
			BestOffer: h.Set.BestOffer,
			Vendors:   len(h.Set.Prices),
			UpdatedAt: h.Set.UpdatedAt,
		})
	}
	return d
}

// CardMarket es el análisis de mercado de una carta.
type CardMarket struct {
	Card          CardIdentity  `json:"card"`
	BestBid       float64       `json:"best_bid"`
	BestOffer     float64       `json:"best_offer"`
	Spread        float64       `json:"spread"`
	SpreadPercent float64       `json:"spread_percent"`
	Vendors       int           `json:"vendors"`
	DataPoints    int           `json:"data_points"`
	EMA           float64       `json:"ema"`
	EMAChange     float64       `json:"ema_change_percent"`
	Trend         Trend         `json:"trend"`
	VendorTrends  []VendorTrend `json:"vendor_trends"`
}

// VendorTrend resume la evolución de un vendor (o del best bid) en la ventana.
type VendorTrend struct {
	Source        string  `json:"source"`
	First         float64 `json:"first"`
	Last          float64 `json:"last"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	DataPoints    int     `json:"data_points"`
}

// MarketAnalysis es la vista de análisis de mercado.
type MarketAnalysis struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowDays  int          `json:"window_days"`
	Cards       []CardMarket `json:"cards"`
	Gainers     int          `json:"gainers"`
	Losers      int          `json:"losers"`
	Stable      int          `json:"stable"`
}
