package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/schoolerp/gamification/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ErrWindowClosed is returned by IncrementProgress for a challenge key whose
// deadline is not after the increment time.
var ErrWindowClosed = errors.New("challenge window closed")

// Store persists points, activity and progress records. Counters are only
// ever mutated through AddPoints, IncrementProgress and CompleteAndCredit so
// that concurrent actions for the same user never lose an update.
type Store interface {
	// AddPoints increments the user's total by delta, creating the record on
	// first use, and sets lastActivity to at. When entry is non-nil it is
	// appended to the activity log. Returns the new total.
	AddPoints(ctx context.Context, userID string, delta int, at time.Time, entry *domain.ActivityEntry) (int, error)

	// IncrementProgress adds one to the counter identified by key, creating
	// it when absent, and returns the post-increment state. Challenge keys
	// only match a record whose deadline is after at; an expired key yields
	// ErrWindowClosed.
	IncrementProgress(ctx context.Context, key domain.ProgressKey, at time.Time) (domain.Progress, error)

	// CompleteAndCredit sets completed=true and completedAt=at only when the
	// record is not yet completed and, in the same unit of work, adds bonus
	// to the user's total. Either both writes apply or neither does. Reports
	// whether the completion applied and the user's total afterwards.
	CompleteAndCredit(ctx context.Context, key domain.ProgressKey, bonus int, at time.Time) (applied bool, total int, err error)

	// GetPoints returns the user's points record, or nil when none exists.
	GetPoints(ctx context.Context, userID string) (*domain.UserPoints, error)

	// ListActivity returns the newest activity entries first.
	ListActivity(ctx context.Context, userID string, limit int) ([]domain.ActivityEntry, error)

	// ListAchievements returns every achievement record of the user.
	ListAchievements(ctx context.Context, userID string) ([]domain.AchievementProgress, error)

	// ListChallenges returns the user's challenge records whose deadline is
	// after activeAt.
	ListChallenges(ctx context.Context, userID string, activeAt time.Time) ([]domain.ChallengeProgress, error)

	// Leaderboard returns users ordered by total points, highest first.
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)

	// DeleteExpiredChallenges removes challenge records whose deadline is
	// before the cutoff. Returns the number removed.
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns the oldest unpublished events.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished deletes relayed events.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// Activity list bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit maps a requested page size into [1, MaxListLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
