package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable: fallo de red o de parseo en un vendor.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceTimeout: el vendor no respondió antes del deadline.
	ErrSourceTimeout = errors.New("source timeout")
	// ErrInsufficientHistory: muy pocos puntos para puntuar la carta.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvalidCard: violación de contrato en CardIdentity.
	ErrInvalidCard = errors.New("invalid card identity")
)

// SourceError es el fallo de un vendor concreto para una carta concreta.
// Se registra en el BatchReport; nunca se propaga fuera del agregador.
type SourceError struct {
	Source string
	Card   string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Card, e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsTimeout devuelve true si el fallo fue por deadline.
func (e *SourceError) IsTimeout() bool {
	return errors.Is(e.Err, ErrSourceTimeout)
}
