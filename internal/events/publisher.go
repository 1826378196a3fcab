// Package events publishes gamification events, either through the
// Postgres outbox or straight to the broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/schoolerp/gamification/internal/domain"
	"github.com/schoolerp/gamification/internal/guard"
	"github.com/schoolerp/gamification/internal/repository"
)

// DefaultTopicPrefix prefixes every event type to form the broker topic.
const DefaultTopicPrefix = "schoolerp.gamification"

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, drafts ...domain.OutboxDraft) error
}

// Producer writes one message to a broker topic.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// TxBeginner starts a transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OutboxPublisher writes events to the event_outbox table for the relay.
type OutboxPublisher struct {
	db     TxBeginner
	outbox repository.OutboxRepository
}

// NewOutboxPublisher creates a publisher that writes to the outbox table.
func NewOutboxPublisher(db TxBeginner, outbox repository.OutboxRepository) *OutboxPublisher {
	return &OutboxPublisher{db: db, outbox: outbox}
}

// Publish inserts every draft in one transaction: all rows land or none do.
func (p *OutboxPublisher) Publish(ctx context.Context, drafts ...domain.OutboxDraft) error {
	if len(drafts) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, p.db, func(tx pgx.Tx) error {
		for _, d := range drafts {
			if err := p.outbox.Insert(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// BrokerPublisher sends events directly to the broker.
type BrokerPublisher struct {
	producer Producer
	prefix   string
	breaker  *guard.CircuitBreaker
}

// NewBrokerPublisher creates a publisher over a producer.
func NewBrokerPublisher(producer Producer, prefix string) *BrokerPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &BrokerPublisher{producer: producer, prefix: prefix}
}

// WithBreaker makes the publisher skip topics whose circuit is open, so a
// dead broker does not add a timeout to every credited action.
func (p *BrokerPublisher) WithBreaker(cb *guard.CircuitBreaker) *BrokerPublisher {
	p.breaker = cb
	return p
}

func (p *BrokerPublisher) Publish(ctx context.Context, drafts ...domain.OutboxDraft) error {
	for _, d := range drafts {
		msg, err := Envelope(d)
		if err != nil {
			return err
		}
		topic := d.Topic(p.prefix)
		if p.breaker != nil {
			if res := p.breaker.Check(ctx, topic); !res.Allowed {
				return fmt.Errorf("publish %s: %s", d.EventType, res.Reason)
			}
		}
		err = p.producer.Publish(ctx, topic, []byte(d.PartitionKey), msg)
		if p.breaker != nil {
			if err != nil {
				p.breaker.RecordFailure(topic)
			} else {
				p.breaker.RecordSuccess(topic)
			}
		}
		if err != nil {
			return fmt.Errorf("publish %s: %w", d.EventType, err)
		}
	}
	return nil
}

// Envelope encodes the broker message body of an event.
func Envelope(d domain.OutboxDraft) ([]byte, error) {
	msg, err := json.Marshal(map[string]interface{}{
		"event_id":       d.EventID,
		"aggregate_type": d.AggregateType,
		"aggregate_id":   d.AggregateID,
		"event_type":     d.EventType,
		"payload":        d.Payload,
		"occurred_at":    d.OccurredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", d.EventID, err)
	}
	return msg, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, ...domain.OutboxDraft) error { return nil }
