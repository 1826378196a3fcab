package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UserPoints is the running points total for one user.
type UserPoints struct {
	UserID       string    `json:"userId" bson:"userId"`
	TotalPoints  int       `json:"totalPoints" bson:"totalPoints"`
	LastActivity time.Time `json:"lastActivity" bson:"lastActivity"`
}

// ActivityEntry is one append-only log row per credited action.
type ActivityEntry struct {
	ID          uuid.UUID       `json:"id" bson:"_id"`
	UserID      string          `json:"userId" bson:"userId"`
	ActionType  string          `json:"actionType" bson:"actionType"`
	Description string          `json:"description" bson:"description"`
	Points      int             `json:"points" bson:"points"`
	Metadata    json.RawMessage `json:"metadata" bson:"-"`
	Timestamp   time.Time       `json:"timestamp" bson:"timestamp"`
}

// ProgressKind distinguishes achievement counters from challenge counters.
type ProgressKind string

const (
	KindAchievement ProgressKind = "achievement"
	KindChallenge   ProgressKind = "challenge"
)

// ProgressKey identifies one progress record. Deadline is set for
// challenges only; each deadline is its own window.
type ProgressKey struct {
	Kind     ProgressKind
	UserID   string
	ID       string
	Deadline time.Time
}

// AchievementKey builds the key of a user's achievement record.
func AchievementKey(userID, achievementID string) ProgressKey {
	return ProgressKey{Kind: KindAchievement, UserID: userID, ID: achievementID}
}

// ChallengeKey builds the key of a user's challenge record for one window.
func ChallengeKey(userID, challengeID string, deadline time.Time) ProgressKey {
	return ProgressKey{Kind: KindChallenge, UserID: userID, ID: challengeID, Deadline: deadline.UTC()}
}

// Progress is the state of a counter as returned by an atomic increment.
type Progress struct {
	Key         ProgressKey `json:"-"`
	Progress    int         `json:"progress"`
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// AchievementProgress is a user's counter toward one achievement.
type AchievementProgress struct {
	UserID        string     `json:"userId" bson:"userId"`
	AchievementID string     `json:"achievementId" bson:"achievementId"`
	Progress      int        `json:"progress" bson:"progress"`
	Completed     bool       `json:"completed" bson:"completed"`
	CompletedAt   *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// ChallengeProgress is a user's counter toward one challenge window.
type ChallengeProgress struct {
	UserID      string     `json:"userId" bson:"userId"`
	ChallengeID string     `json:"challengeId" bson:"challengeId"`
	Deadline    time.Time  `json:"deadline" bson:"deadline"`
	Progress    int        `json:"progress" bson:"progress"`
	Completed   bool       `json:"completed" bson:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Completion records a counter that reached its target during an action.
type Completion struct {
	Kind        ProgressKind `json:"kind"`
	ID          string       `json:"id"`
	BonusPoints int          `json:"bonusPoints"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
}

// LeaderboardEntry is one ranked row of the points leaderboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	TotalPoints int    `json:"totalPoints"`
}

// Caller is the authenticated identity an action is performed under.
type Caller struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	SchoolID string `json:"schoolId"`
}
