package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alejandrodnm/buylist/internal/domain"
)

// messageWriter es el subconjunto de *kafka.Writer que usa el publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PriceUpdate es el evento publicado por carta y ejecución.
type PriceUpdate struct {
	RunID     string                         `json:"run_id"`
	Card      domain.CardIdentity            `json:"card"`
	Quantity  int                            `json:"quantity"`
	BestBid   *domain.PriceQuote             `json:"best_bid,omitempty"`
	BestOffer *domain.PriceQuote             `json:"best_offer,omitempty"`
	Prices    map[string][]domain.PriceQuote `json:"prices"`
	UpdatedAt time.Time                      `json:"updated_at"`
}

// KafkaPublisher implementa ports.Notifier publicando un mensaje por carta,
// con la clave de la carta como key para mantener el orden por partición.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher crea el publisher sobre los brokers dados.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("notify.NewKafkaPublisher: brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, topic: topic}, nil
}

// Notify publica un PriceUpdate por cada holding del reporte en un solo batch.
func (p *KafkaPublisher) Notify(ctx context.Context, report domain.RefreshReport) error {
	if len(report.Holdings) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(report.Holdings))
	for _, h := range report.Holdings {
		value, err := json.Marshal(PriceUpdate{
			RunID:     report.RunID,
			Card:      h.Set.Card,
			Quantity:  h.Quantity,
			BestBid:   h.Set.BestBid,
			BestOffer: h.Set.BestOffer,
			Prices:    h.Set.Prices,
			UpdatedAt: h.Set.UpdatedAt,
		})
		if err != nil {
			return fmt.Errorf("notify.KafkaPublisher: marshal %s: %w", h.Set.Card.Key(), err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: p.topic,
			Key:   []byte(h.Set.Card.Key()),
			Value: value,
			Time:  report.GeneratedAt,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("notify.KafkaPublisher: write %d messages: %w", len(msgs), err)
	}
	return nil
}

// Close cierra el writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
