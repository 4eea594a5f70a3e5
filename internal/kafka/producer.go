package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"

	"github.com/segmentio/kafka-go"
)

// Event is the envelope every lifecycle message is wrapped in.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// Producer streams reservation and order lifecycle events to downstream
// consumers (notifications, analytics). In mock mode it only logs, which is
// how local development runs without a broker.
type Producer struct {
	reservations *kafka.Writer
	orders       *kafka.Writer
	mock         bool
	logger       *logger.Logger
}

func NewProducer(brokers []string, reservationTopic, orderTopic string, mock bool, log *logger.Logger) *Producer {
	p := &Producer{mock: mock, logger: log}
	if !mock {
		p.reservations = kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   reservationTopic,
		})
		p.orders = kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   orderTopic,
		})
	}
	return p
}

func (p *Producer) publish(writer *kafka.Writer, key, eventType string, payload interface{}) error {
	event := Event{Type: eventType, Payload: payload, At: time.Now().UTC()}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.mock {
		p.logger.LogKafka("MOCK", eventType, string(msgBytes))
		return nil
	}

	p.logger.LogKafka("PUBLISH", writer.Topic, fmt.Sprintf("%s key=%s", eventType, key))
	return writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

func (p *Producer) PublishReservationCreated(res models.Reservation) error {
	return p.publish(p.reservations, res.ID, "reservation_created", res)
}

func (p *Producer) PublishReservationReleased(res models.Reservation) error {
	return p.publish(p.reservations, res.ID, "reservation_released", res)
}

func (p *Producer) PublishOrderCreated(order models.Order) error {
	return p.publish(p.orders, order.ID, "order_created", order)
}

func (p *Producer) PublishOrderConfirmed(order models.Order) error {
	return p.publish(p.orders, order.ID, "order_confirmed", order)
}

func (p *Producer) PublishOrderExpired(order models.Order) error {
	return p.publish(p.orders, order.ID, "order_expired", order)
}

func (p *Producer) Close() error {
	if p.mock {
		return nil
	}
	if err := p.reservations.Close(); err != nil {
		return err
	}
	return p.orders.Close()
}
