package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"wellsite/internal/booking"
)

// Publisher hands confirmed bookings to downstream consumers as JSON
// messages keyed by request ID.
type Publisher struct {
	writer *kafka.Writer
}

func New(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *Publisher) Submit(ctx context.Context, req booking.Request) error {
	msg, err := encode(req)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish booking %s: %w", req.ID, err)
	}
	return nil
}

func encode(req booking.Request) (kafka.Message, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal booking %s: %w", req.ID, err)
	}
	return kafka.Message{
		Key:   []byte(req.ID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("booking.requested")},
		},
	}, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
