package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewPointsCreditedEvent creates the event emitted after an action is credited.
func NewPointsCreditedEvent(entry ActivityEntry, bonus int) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":      entry.UserID,
		"action_type":  entry.ActionType,
		"points":       entry.Points,
		"bonus_points": bonus,
		"entry_id":     entry.ID.String(),
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateUserPoints,
		AggregateID:   entry.UserID,
		EventType:     EventPointsCredited,
		PartitionKey:  entry.UserID,
		Payload:       payload,
		OccurredAt:    entry.Timestamp,
	}
}

// NewCompletionEvent creates the event for an achievement or challenge that
// reached its target.
func NewCompletionEvent(userID string, c Completion, at time.Time) OutboxDraft {
	evtType := EventAchievementCompleted
	if c.Kind == KindChallenge {
		evtType = EventChallengeCompleted
	}
	body := map[string]interface{}{
		"user_id":      userID,
		"id":           c.ID,
		"bonus_points": c.BonusPoints,
	}
	if c.Deadline != nil {
		body["deadline"] = c.Deadline.UTC()
	}
	payload, _ := json.Marshal(body)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateProgress,
		AggregateID:   userID,
		EventType:     evtType,
		PartitionKey:  userID,
		Payload:       payload,
		OccurredAt:    at,
	}
}
