package events

import (
	"context"
	"log/slog"

	"github.com/schoolerp/gamification/internal/repository"
)

// Relay drains the event_outbox table to the broker.
type Relay struct {
	db        repository.DBTX
	outbox    repository.OutboxRepository
	producer  Producer
	prefix    string
	batchSize int
	logger    *slog.Logger
}

// NewRelay creates an outbox relay.
func NewRelay(db repository.DBTX, outbox repository.OutboxRepository, producer Producer, prefix string, batchSize int, logger *slog.Logger) *Relay {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{db: db, outbox: outbox, producer: producer, prefix: prefix, batchSize: batchSize, logger: logger}
}

// RunOnce publishes one batch and deletes the rows that were published.
// Rows that fail to publish stay in the outbox for the next run.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	drafts, err := r.outbox.FetchUnpublished(ctx, r.db, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(drafts) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(drafts))
	for _, d := range drafts {
		msg, err := Envelope(d)
		if err != nil {
			// Unencodable rows would block the outbox forever.
			r.logger.Error("dropping outbox event", "event_id", d.EventID, "error", err)
			ids = append(ids, d.SeqID)
			continue
		}
		if err := r.producer.Publish(ctx, d.Topic(r.prefix), []byte(d.PartitionKey), msg); err != nil {
			r.logger.Error("broker publish failed", "event_id", d.EventID, "error", err)
			break
		}
		ids = append(ids, d.SeqID)
	}

	if err := r.outbox.MarkPublished(ctx, r.db, ids); err != nil {
		return 0, err
	}
	r.logger.Debug("outbox relay batch", "fetched", len(drafts), "published", len(ids))
	return len(ids), nil
}
