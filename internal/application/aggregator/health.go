package aggregator

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// healthTracker cuenta resultados por fuente; uno vive con el proceso y
// otro por batch.
type healthTracker struct {
	mu      sync.Mutex
	sources map[string]*domain.SourceHealth
	latency map[string]time.Duration
}

func newHealthTracker() *healthTracker {
	return &healthTracker{
		sources: make(map[string]*domain.SourceHealth),
		latency: make(map[string]time.Duration),
	}
}

func (t *healthTracker) record(r sourceResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.sources[r.source]
	if !ok {
		h = &domain.SourceHealth{Source: r.source}
		t.sources[r.source] = h
	}
	h.Calls++
	switch {
	case r.err != nil && errors.Is(r.err, domain.ErrSourceTimeout):
		h.Timeouts++
		h.LastError = r.err.Error()
	case r.err != nil:
		h.Failures++
		h.LastError = r.err.Error()
	case len(r.quotes) == 0:
		h.Empty++
	default:
		h.Successes++
	}
	t.latency[r.source] += r.elapsed
	h.MeanLatency = t.latency[r.source] / time.Duration(h.Calls)
}

func (t *healthTracker) snapshot() []domain.SourceHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.SourceHealth, 0, len(t.sources))
	for _, h := range t.sources {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// SourceHealth devuelve las estadísticas de la vida del proceso por fuente,
// ordenadas por nombre. Las de cada batch van en BatchReport.Sources.
func (a *Aggregator) SourceHealth() []domain.SourceHealth {
	return a.health.snapshot()
}
