package domain

import (
	"sort"
	"time"
)

// SourceHealth resume las llamadas a una fuente: en un batch o acumulado.
type SourceHealth struct {
	Source      string        `json:"source"`
	Calls       int           `json:"calls"`
	Successes   int           `json:"successes"`
	Empty       int           `json:"empty"`
	Failures    int           `json:"failures"`
	Timeouts    int           `json:"timeouts"`
	MeanLatency time.Duration `json:"mean_latency"`
	LastError   string        `json:"last_error,omitempty"`
}

// SuccessRate devuelve la fracción de llamadas sin error.
func (h SourceHealth) SuccessRate() float64 {
	if h.Calls == 0 {
		return 0
	}
	return float64(h.Successes+h.Empty) / float64(h.Calls)
}

// CombineSourceHealth suma la salud de varios batches, del más antiguo al más
// reciente. La latencia media se pondera por llamadas y LastError es el del
// último batch que tuvo alguno.
func CombineSourceHealth(batches ...[]SourceHealth) []SourceHealth {
	acc := make(map[string]*SourceHealth)
	total := make(map[string]time.Duration)
	for _, batch := range batches {
		for _, h := range batch {
			c, ok := acc[h.Source]
			if !ok {
				c = &SourceHealth{Source: h.Source}
				acc[h.Source] = c
			}
			c.Calls += h.Calls
			c.Successes += h.Successes
			c.Empty += h.Empty
			c.Failures += h.Failures
			c.Timeouts += h.Timeouts
			total[h.Source] += h.MeanLatency * time.Duration(h.Calls)
			if h.LastError != "" {
				c.LastError = h.LastError
			}
		}
	}

	out := make([]SourceHealth, 0, len(acc))
	for name, c := range acc {
		if c.Calls > 0 {
			c.MeanLatency = total[name] / time.Duration(c.Calls)
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
