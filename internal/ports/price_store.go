package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// PriceStore persiste el último CardPriceSet de cada carta (una fila por Key).
type PriceStore interface {
	// LoadPriceSet devuelve el set guardado para la carta; found=false si no existe.
	LoadPriceSet(ctx context.Context, card domain.CardIdentity) (set domain.CardPriceSet, found bool, err error)

	// SavePriceSet reemplaza atómicamente la fila de la carta.
	SavePriceSet(ctx context.Context, set domain.CardPriceSet) error

	// ListPriceSets devuelve todos los sets guardados.
	ListPriceSets(ctx context.Context) ([]domain.CardPriceSet, error)

	// DeletePriceSetsBefore borra los sets cuyo UpdatedAt es anterior al corte.
	DeletePriceSetsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// ClearPriceSets vacía la tabla.
	ClearPriceSets(ctx context.Context) error
}
