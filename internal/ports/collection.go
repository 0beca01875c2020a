package ports

import (
	"context"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// CollectionReader lee la colección desde su store externo.
type CollectionReader interface {
	LoadCollection(ctx context.Context) ([]domain.CollectionCard, error)
}
