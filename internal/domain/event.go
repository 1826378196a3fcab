package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all gamification event types.
type EventType string

const (
	EventPointsCredited       EventType = "points.credited"
	EventAchievementCompleted EventType = "achievement.completed"
	EventChallengeCompleted   EventType = "challenge.completed"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateUserPoints AggregateType = "user_points"
	AggregateProgress   AggregateType = "progress"
)

// OutboxDraft is the payload written to the event_outbox table or published
// directly to the broker.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// Topic is the broker topic an event is published under.
func (d OutboxDraft) Topic(prefix string) string {
	return prefix + "." + string(d.EventType)
}
