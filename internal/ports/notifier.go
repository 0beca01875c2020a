package ports

import (
	"context"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// Notifier presenta o publica el resultado de un ciclo de refresco.
// En la implementación de consola imprime tablas; en Kafka publica un
// mensaje por carta.
type Notifier interface {
	Notify(ctx context.Context, report domain.RefreshReport) error
}
