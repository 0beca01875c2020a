package ports

import "time"

// Metrics recibe las observaciones del agregador y de las cachés.
type Metrics interface {
	// ObserveSource registra una llamada a fuente; outcome es ok|empty|error|timeout.
	ObserveSource(source, outcome string, elapsed time.Duration)
	// CacheLookup registra un acceso a caché; result es hit|miss|stale.
	CacheLookup(cache, result string)
	// HistoryAppended suma registros insertados en el histórico.
	HistoryAppended(n int)
	// BatchCompleted registra la duración y tamaño de un AggregateMany.
	BatchCompleted(cards int, elapsed time.Duration)
}

// NopMetrics descarta todo; es el valor por defecto.
type NopMetrics struct{}

func (NopMetrics) ObserveSource(string, string, time.Duration) {}
func (NopMetrics) CacheLookup(string, string)                  {}
func (NopMetrics) HistoryAppended(int)                         {}
func (NopMetrics) BatchCompleted(int, time.Duration)           {}
