package domain

import (
	"sort"
	"time"
)

// CardPriceSet es el resultado autoritativo de agregar todos los vendors para una carta.
//
// Invariante: BestBid es el bid de mayor importe y BestOffer el offer de menor
// importe entre todas las fuentes. Empates: gana la observación más antigua;
// si también empata, el nombre de fuente menor y luego la posición en la secuencia.
// Solo Recompute modifica BestBid/BestOffer.
type CardPriceSet struct {
	Card      CardIdentity            `json:"card"`
	Prices    map[string][]PriceQuote `json:"prices"`
	BestBid   *PriceQuote             `json:"best_bid,omitempty"`
	BestOffer *PriceQuote             `json:"best_offer,omitempty"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// NewCardPriceSet construye el set y deriva best bid/offer.
func NewCardPriceSet(card CardIdentity, prices map[string][]PriceQuote) CardPriceSet {
	if prices == nil {
		prices = make(map[string][]PriceQuote)
	}
	s := CardPriceSet{Card: card, Prices: prices}
	s.Recompute()
	return s
}

// EmptyPriceSet devuelve un set válido sin quotes ("no prices found").
func EmptyPriceSet(card CardIdentity) CardPriceSet {
	return CardPriceSet{Card: card, Prices: make(map[string][]PriceQuote)}
}

// Recompute recalcula BestBid y BestOffer a partir de Prices.
// Idempotente: no toca nada más que los dos campos derivados.
func (s *CardPriceSet) Recompute() {
	s.BestBid = nil
	s.BestOffer = nil

	for _, source := range s.Sources() {
		for _, q := range s.Prices[source] {
			switch q.Kind {
			case KindBid:
				if s.BestBid == nil || betterBid(q, *s.BestBid) {
					best := q
					s.BestBid = &best
				}
			case KindOffer:
				if s.BestOffer == nil || betterOffer(q, *s.BestOffer) {
					best := q
					s.BestOffer = &best
				}
			}
		}
	}
}

// betterBid: mayor importe; a igualdad, observación más antigua.
func betterBid(candidate, current PriceQuote) bool {
	if c := candidate.Amount.Cmp(current.Amount); c != 0 {
		return c > 0
	}
	return candidate.ObservedAt.Before(current.ObservedAt)
}

// betterOffer: menor importe; a igualdad, observación más antigua.
func betterOffer(candidate, current PriceQuote) bool {
	if c := candidate.Amount.Cmp(current.Amount); c != 0 {
		return c < 0
	}
	return candidate.ObservedAt.Before(current.ObservedAt)
}

// Sources devuelve los nombres de fuente ordenados.
func (s CardPriceSet) Sources() []string {
	names := make([]string, 0, len(s.Prices))
	for name := range s.Prices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPrices devuelve true si al menos una fuente aportó quotes.
func (s CardPriceSet) HasPrices() bool {
	return s.QuoteCount() > 0
}

// QuoteCount cuenta los quotes de todas las fuentes.
func (s CardPriceSet) QuoteCount() int {
	n := 0
	for _, qs := range s.Prices {
		n += len(qs)
	}
	return n
}

// FreshAt devuelve true si TODOS los quotes se observaron dentro de la ventana.
// Un solo quote viejo descalifica el set entero. Un set sin quotes no es fresco.
func (s CardPriceSet) FreshAt(now time.Time, window time.Duration) bool {
	if !s.HasPrices() {
		return false
	}
	for _, qs := range s.Prices {
		for _, q := range qs {
			if now.Sub(q.ObservedAt) > window {
				return false
			}
		}
	}
	return true
}

// OldestObservation devuelve el timestamp del quote más antiguo (zero si vacío).
func (s CardPriceSet) OldestObservation() time.Time {
	var oldest time.Time
	for _, qs := range s.Prices {
		for _, q := range qs {
			if oldest.IsZero() || q.ObservedAt.Before(oldest) {
				oldest = q.ObservedAt
			}
		}
	}
	return oldest
}

// Clone hace una copia profunda; las cachés guardan y entregan copias para que
// ningún lector vea un set a medio escribir.
func (s CardPriceSet) Clone() CardPriceSet {
	out := CardPriceSet{
		Card:      s.Card,
		Prices:    make(map[string][]PriceQuote, len(s.Prices)),
		UpdatedAt: s.UpdatedAt,
	}
	for name, qs := range s.Prices {
		cp := make([]PriceQuote, len(qs))
		copy(cp, qs)
		out.Prices[name] = cp
	}
	if s.BestBid != nil {
		b := *s.BestBid
		out.BestBid = &b
	}
	if s.BestOffer != nil {
		o := *s.BestOffer
		out.BestOffer = &o
	}
	return out
}

// BestBidFloat devuelve el best bid como float64 (0 si no hay).
func (s CardPriceSet) BestBidFloat() float64 {
	if s.BestBid == nil {
		return 0
	}
	return s.BestBid.Float()
}

// BestOfferFloat devuelve el best offer como float64 (0 si no hay).
func (s CardPriceSet) BestOfferFloat() float64 {
	if s.BestOffer == nil {
		return 0
	}
	return s.BestOffer.Float()
}
