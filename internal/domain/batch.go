package domain

import (
	"errors"
	"time"
)

// SourceFailure registra el fallo de una fuente para una carta dentro de un batch.
type SourceFailure struct {
	Card    string `json:"card"`
	Source  string `json:"source"`
	Timeout bool   `json:"timeout"`
	Message string `json:"message"`
}

// BatchReport resume una ejecución de AggregateMany: lo que salió bien y
// lo que falló, sin abortar el batch por fallos parciales.
type BatchReport struct {
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Cards           int             `json:"cards"`
	CardsWithPrices int             `json:"cards_with_prices"`
	CardsEmpty      int             `json:"cards_empty"`
	SourceCalls     int             `json:"source_calls"`
	Failures        []SourceFailure `json:"failures,omitempty"`
	Sources         []SourceHealth  `json:"sources,omitempty"`
}

// AddFailure añade un SourceError al reporte.
func (r *BatchReport) AddFailure(err *SourceError) {
	r.Failures = append(r.Failures, SourceFailure{
		Card:    err.Card,
		Source:  err.Source,
		Timeout: errors.Is(err, ErrSourceTimeout),
		Message: err.Error(),
	})
}

// Timeouts cuenta los fallos por deadline.
func (r BatchReport) Timeouts() int {
	n := 0
	for _, f := range r.Failures {
		if f.Timeout {
			n++
		}
	}
	return n
}

// Duration devuelve cuánto tardó el batch.
func (r BatchReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RefreshReport es lo que recibe cada Notifier tras un ciclo de refresco.
type RefreshReport struct {
	RunID           string            `json:"run_id"`
	GeneratedAt     time.Time         `json:"generated_at"`
	Holdings        []Holding         `json:"holdings"`
	Summary         CollectionSummary `json:"summary"`
	HotCards        []HotCardScore    `json:"hot_cards"`
	Recommendations Recommendations   `json:"recommendations"`
	Batch           BatchReport       `json:"batch"`
}
