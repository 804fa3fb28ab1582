package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/vasiliy-maslov/prompt-shirt/internal/order"
)

// PrintRequest is the message handed to the print provider once an order is
// paid. RequestID is unique per fulfillment attempt; SessionID identifies the
// order.
type PrintRequest struct {
	RequestID   uuid.UUID          `json:"requestId"`
	SessionID   string             `json:"sessionId"`
	Prompt      string             `json:"prompt"`
	ShirtColor  order.ShirtColor   `json:"shirtColor"`
	ShirtSize   order.ShirtSize    `json:"shirtSize"`
	AmountCents int64              `json:"amountCents"`
	Currency    string             `json:"currency"`
	Customer    order.CustomerInfo `json:"customer"`
	CompletedAt time.Time          `json:"completedAt"`
}

func NewPrintRequest(o order.Order) (PrintRequest, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return PrintRequest{}, fmt.Errorf("generate request id: %w", err)
	}

	completedAt := o.UpdatedAt
	if o.CompletedAt != nil {
		completedAt = *o.CompletedAt
	}

	return PrintRequest{
		RequestID:   id,
		SessionID:   o.SessionID,
		Prompt:      o.Prompt,
		ShirtColor:  o.ShirtColor,
		ShirtSize:   o.ShirtSize,
		AmountCents: o.AmountCents,
		Currency:    o.Currency,
		Customer:    o.Customer,
		CompletedAt: completedAt,
	}, nil
}

// LogFulfiller only records the order; used when no broker is configured.
type LogFulfiller struct{}

func NewLogFulfiller() *LogFulfiller { return &LogFulfiller{} }

func (LogFulfiller) Fulfill(_ context.Context, o order.Order) error {
	log.Info().
		Str("session_id", o.SessionID).
		Str("shirt_color", string(o.ShirtColor)).
		Str("shirt_size", string(o.ShirtSize)).
		Int64("amount_cents", o.AmountCents).
		Msg("fulfillment: order ready for printing")
	return nil
}

// Chain runs fulfillers in order and stops at the first error.
type Chain struct {
	fulfillers []order.Fulfiller
}

func NewChain(fs ...order.Fulfiller) *Chain {
	return &Chain{fulfillers: fs}
}

func (c *Chain) Fulfill(ctx context.Context, o order.Order) error {
	for _, f := range c.fulfillers {
		if err := f.Fulfill(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

// messageWriter abstracts kafka.Writer for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes a PrintRequest per completed order, keyed by
// session id so retries for one order land on one partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// NewKafkaPublisherWith is only for tests to inject a fake writer.
func NewKafkaPublisherWith(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

func (k *KafkaPublisher) Fulfill(ctx context.Context, o order.Order) error {
	req, err := NewPrintRequest(o)
	if err != nil {
		return err
	}

	b, err := json.Marshal(&req)
	if err != nil {
		return fmt.Errorf("marshal print request: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(o.SessionID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "request_id", Value: []byte(req.RequestID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("publish print request to %s: %w", k.topic, err)
	}

	log.Info().
		Str("session_id", o.SessionID).
		Stringer("request_id", req.RequestID).
		Str("topic", k.topic).
		Msg("fulfillment: print request published")
	return nil
}

func (k *KafkaPublisher) Close() error { return k.writer.Close() }
