package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
)

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes settlement lifecycle events to a single topic as
// JSON envelopes, keyed by business owner so per-business ordering is
// preserved across partitions.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// envelope wraps every payload with its event type for consumers.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (p *KafkaPublisher) publish(ctx context.Context, key, typ string, payload any) error {
	value, err := json.Marshal(envelope{Type: typ, Data: payload})
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "write %s event", typ)
	}
	return nil
}

func (p *KafkaPublisher) SettlementCompleted(ctx context.Context, ev SettlementEvent) error {
	return p.publish(ctx, ev.BusinessOwner, "settlement.completed", ev)
}

func (p *KafkaPublisher) CouponRedeemed(ctx context.Context, ev RedemptionEvent) error {
	return p.publish(ctx, ev.BusinessOwner, "coupon.redeemed", ev)
}

func (p *KafkaPublisher) ReconciliationNeeded(ctx context.Context, ev ReconciliationEvent) error {
	return p.publish(ctx, ev.TransactionID, "settlement.reconciliation_needed", ev)
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
