package aggregator

// concurrent.go: worker pool para consultar las fuentes de una carta en paralelo.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/buylist/internal/domain"
	"github.com/alejandrodnm/buylist/internal/ports"
)

// sourceResult es lo que devuelve una llamada a fuente.
type sourceResult struct {
	source  string
	quotes  []domain.PriceQuote
	err     error
	elapsed time.Duration
}

// quoteSourcesConcurrent llama a todas las fuentes con como máximo workers
// llamadas simultáneas y devuelve un resultado por fuente.
//
// Cuando ctx expira deja de esperar: las fuentes que no respondieron se
// devuelven como timeout y su respuesta tardía, si llega, se descarta.
// resultCh tiene capacidad para todas las fuentes, así que ningún worker
// queda bloqueado enviando después de que el colector se haya ido.
func quoteSourcesConcurrent(
	ctx context.Context,
	sources []ports.QuoteSource,
	card domain.CardIdentity,
	workers int,
) []sourceResult {
	if len(sources) == 0 {
		return nil
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	workCh := make(chan ports.QuoteSource, len(sources))
	resultCh := make(chan sourceResult, len(sources))

	for i := 0; i < workers; i++ {
		go func() {
			for src := range workCh {
				resultCh <- callSource(ctx, src, card)
			}
		}()
	}

	for _, src := range sources {
		workCh <- src
	}
	close(workCh)

	pending := make(map[string]bool, len(sources))
	for _, src := range sources {
		pending[src.Name()] = true
	}

	results := make([]sourceResult, 0, len(sources))
	for len(pending) > 0 {
		select {
		case r := <-resultCh:
			if !pending[r.source] {
				continue
			}
			delete(pending, r.source)
			results = append(results, r)
		case <-ctx.Done():
			for _, src := range sources {
				name := src.Name()
				if !pending[name] {
					continue
				}
				delete(pending, name)
				results = append(results, sourceResult{
					source: name,
					err:    fmt.Errorf("%w: %v", domain.ErrSourceTimeout, ctx.Err()),
				})
			}
		}
	}

	slog.Debug("sources queried",
		"card", card.String(),
		"sources", len(sources),
		"workers", workers,
	)
	return results
}

// callSource ejecuta una sola llamada aislando pánicos y clasificando el error.
func callSource(ctx context.Context, src ports.QuoteSource, card domain.CardIdentity) (res sourceResult) {
	name := src.Name()
	start := time.Now()
	res.source = name

	defer func() {
		if p := recover(); p != nil {
			res.quotes = nil
			res.err = fmt.Errorf("%w: panic: %v", domain.ErrSourceUnavailable, p)
		}
		res.elapsed = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		res.err = fmt.Errorf("%w: not started: %v", domain.ErrSourceTimeout, err)
		return res
	}

	quotes, err := src.Quote(ctx, card)
	if err != nil {
		res.err = classify(ctx, err)
		return res
	}
	res.quotes = quotes
	return res
}
