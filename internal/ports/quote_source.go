package ports

import (
	"context"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// QuoteSource es un vendor de precios. Cómo obtiene los quotes (scraping,
// tabla fija, API remota) es invisible para el agregador.
type QuoteSource interface {
	// Name identifica la fuente; es la clave en CardPriceSet.Prices.
	Name() string

	// Quote devuelve los quotes del vendor para la carta. Una lista vacía
	// es un "sin datos" válido, distinto de un error. Los fallos deben
	// envolver domain.ErrSourceUnavailable o domain.ErrSourceTimeout.
	Quote(ctx context.Context, card domain.CardIdentity) ([]domain.PriceQuote, error)
}
