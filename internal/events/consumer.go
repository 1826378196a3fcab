package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// ActionMessage is an ERP action reported on the actions topic.
type ActionMessage struct {
	UserID     string          `json:"userId"`
	ActionType string          `json:"actionType"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Tracker credits actions without reporting failures.
type Tracker interface {
	Track(ctx context.Context, userID, actionType string, metadata json.RawMessage)
}

// MessageSource is a committed-offset message stream.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ActionConsumer feeds ERP action events into the tracker.
type ActionConsumer struct {
	source  MessageSource
	tracker Tracker
	logger  *slog.Logger
}

// NewActionConsumer creates an ActionConsumer.
func NewActionConsumer(source MessageSource, tracker Tracker, logger *slog.Logger) *ActionConsumer {
	return &ActionConsumer{source: source, tracker: tracker, logger: logger}
}

// Run consumes until ctx is done. Every fetched message is committed after
// it is handled, including malformed ones, so a poison message cannot stall
// the partition.
func (c *ActionConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("fetch action message: %w", err)
		}

		c.Handle(ctx, msg)

		if err := c.source.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// Handle decodes one message and tracks it.
func (c *ActionConsumer) Handle(ctx context.Context, msg kafka.Message) {
	var action ActionMessage
	if err := json.Unmarshal(msg.Value, &action); err != nil {
		c.logger.Warn("dropping malformed action message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	c.tracker.Track(ctx, action.UserID, action.ActionType, action.Metadata)
}
