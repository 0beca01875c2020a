package ports

import (
	"context"
	"time"
)

// ViewStore guarda payloads serializados de vistas derivadas con expiración.
// Una entrada expirada se trata como ausente aunque siga almacenada.
type ViewStore interface {
	GetView(ctx context.Context, key string) (payload []byte, found bool, err error)
	SetView(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	DeleteView(ctx context.Context, key string) error
	// DeleteViewPrefix borra todas las claves que empiezan por prefix.
	DeleteViewPrefix(ctx context.Context, prefix string) error
}

// ViewSweeper lo implementan los stores que pueden purgar físicamente
// las entradas expiradas.
type ViewSweeper interface {
	SweepExpiredViews(ctx context.Context) (int64, error)
}
