package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

const EventShipmentCommitted = "shipment.committed"

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ShipmentCommittedEvent struct {
	EventType    string                `json:"event_type"`
	ShipmentID   string                `json:"shipment_id"`
	CreationDate time.Time             `json:"creation_date"`
	TotalPrice   string                `json:"total_price"`
	TotalUnits   int                   `json:"total_units"`
	Items        []domain.ShipmentItem `json:"items"`
}

type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaWriter builds a writer that hashes on the message key, so every
// event for one shipment lands on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishShipmentCommitted(ctx context.Context, shipment domain.Shipment) error {
	msg, err := shipmentMessage(ctx, shipment)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for shipment %s: %w", EventShipmentCommitted, shipment.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func shipmentMessage(ctx context.Context, shipment domain.Shipment) (kafka.Message, error) {
	payload, err := json.Marshal(ShipmentCommittedEvent{
		EventType:    EventShipmentCommitted,
		ShipmentID:   shipment.ID.String(),
		CreationDate: shipment.CreatedAt,
		TotalPrice:   shipment.TotalPrice.String(),
		TotalUnits:   shipment.TotalQuantity(),
		Items:        shipment.Items,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", EventShipmentCommitted, err)
	}

	carrier := &headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return kafka.Message{
		Key:     []byte(shipment.ID.String()),
		Value:   payload,
		Headers: append(carrier.headers, kafka.Header{Key: "event_type", Value: []byte(EventShipmentCommitted)}),
		Time:    shipment.CreatedAt,
	}, nil
}

// headerCarrier lets the otel propagator write trace context into Kafka headers.
type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range c.headers {
		if h.Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(c.headers))
	for i, h := range c.headers {
		keys[i] = h.Key
	}
	return keys
}
