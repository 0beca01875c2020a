package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// HistoryStore es la serie temporal append-only de resultados de agregación.
type HistoryStore interface {
	// Append inserta un registro por set; nunca reescribe registros previos.
	Append(ctx context.Context, records []domain.PriceHistoryRecord) error

	// Query devuelve los registros de la carta desde since, del más antiguo
	// al más reciente.
	Query(ctx context.Context, card domain.CardIdentity, since time.Time) ([]domain.PriceHistoryRecord, error)

	// Prune borra los registros anteriores a olderThan y devuelve cuántos borró.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	// Stats resume el contenido del histórico.
	Stats(ctx context.Context) (domain.HistoryStats, error)
}
