package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	TopicOrders = "bookmarket.orders"

	EventOrderPlaced    = "order.placed"
	EventOrderDelivered = "order.delivered"
)

// OrderEvent is the payload written for every order lifecycle event.
type OrderEvent struct {
	Type        string             `json:"type"`
	OrderID     string             `json:"order_id"`
	BuyerID     string             `json:"buyer_id"`
	SellerID    string             `json:"seller_id"`
	PaymentID   string             `json:"payment_id"`
	TotalAmount int64              `json:"total_amount"`
	Currency    string             `json:"currency"`
	Items       []domain.OrderItem `json:"items"`
	Status      domain.OrderStatus `json:"status"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

type OrderPublisher interface {
	Publish(ctx context.Context, eventType string, orders ...*domain.Order) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  TopicOrders,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w, now: time.Now}
}

// Publish writes one message per order, keyed by order id so events of the
// same order stay on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, orders ...*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(orders))
	for _, o := range orders {
		payload, err := json.Marshal(OrderEvent{
			Type:        eventType,
			OrderID:     o.ID,
			BuyerID:     o.BuyerID,
			SellerID:    o.SellerID,
			PaymentID:   o.PaymentID,
			TotalAmount: o.TotalAmount,
			Currency:    o.Currency,
			Items:       o.Items,
			Status:      o.Status,
			OccurredAt:  p.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", eventType, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.ID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(eventType)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %s events: %w", eventType, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, ...*domain.Order) error {
	return nil
}
