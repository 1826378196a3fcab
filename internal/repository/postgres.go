package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schoolerp/gamification/internal/domain"
)

// PostgresStore is the pgx-backed Store. Counters use server-side
// arithmetic in INSERT ... ON CONFLICT DO UPDATE so increments commute.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store over the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// AddPoints runs the total upsert and the activity insert in one transaction.
func (s *PostgresStore) AddPoints(ctx context.Context, userID string, delta int, at time.Time, entry *domain.ActivityEntry) (int, error) {
	var total int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		total, err = upsertPoints(ctx, tx, userID, delta, at)
		if err != nil {
			return err
		}

		if entry == nil {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO activity_log (id, user_id, action_type, description, points, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entry.ID, entry.UserID, entry.ActionType, entry.Description,
			entry.Points, entry.Metadata, entry.Timestamp)
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func upsertPoints(ctx context.Context, tx pgx.Tx, userID string, delta int, at time.Time) (int, error) {
	var total int
	err := tx.QueryRow(ctx, `
		INSERT INTO user_points (user_id, total_points, last_activity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET total_points = user_points.total_points + EXCLUDED.total_points,
		    last_activity = EXCLUDED.last_activity
		RETURNING total_points`,
		userID, delta, at).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("upsert user points: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) IncrementProgress(ctx context.Context, key domain.ProgressKey, at time.Time) (domain.Progress, error) {
	p := domain.Progress{Key: key}
	var row pgx.Row

	switch key.Kind {
	case domain.KindAchievement:
		row = s.pool.QueryRow(ctx, `
			INSERT INTO user_achievements (user_id, achievement_id, progress, updated_at)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (user_id, achievement_id) DO UPDATE
			SET progress = user_achievements.progress + 1,
			    updated_at = EXCLUDED.updated_at
			RETURNING progress, completed, completed_at`,
			key.UserID, key.ID, at)
	case domain.KindChallenge:
		if !key.Deadline.After(at) {
			return p, ErrWindowClosed
		}
		row = s.pool.QueryRow(ctx, `
			INSERT INTO user_challenges (user_id, challenge_id, deadline, progress, updated_at)
			VALUES ($1, $2, $3, 1, $4)
			ON CONFLICT (user_id, challenge_id, deadline) DO UPDATE
			SET progress = user_challenges.progress + 1,
			    updated_at = EXCLUDED.updated_at
			WHERE user_challenges.deadline > EXCLUDED.updated_at
			RETURNING progress, completed, completed_at`,
			key.UserID, key.ID, key.Deadline, at)
	default:
		return p, fmt.Errorf("unknown progress kind %q", key.Kind)
	}

	err := row.Scan(&p.Progress, &p.Completed, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrWindowClosed
	}
	if err != nil {
		return p, fmt.Errorf("increment %s %s: %w", key.Kind, key.ID, err)
	}
	return p, nil
}

// CompleteAndCredit runs the conditional completion and the bonus upsert in
// one transaction.
func (s *PostgresStore) CompleteAndCredit(ctx context.Context, key domain.ProgressKey, bonus int, at time.Time) (bool, int, error) {
	var (
		sql  string
		args []interface{}
	)
	switch key.Kind {
	case domain.KindAchievement:
		sql = `
			UPDATE user_achievements SET completed = true, completed_at = $3, updated_at = $3
			WHERE user_id = $1 AND achievement_id = $2 AND completed = false`
		args = []interface{}{key.UserID, key.ID, at}
	case domain.KindChallenge:
		sql = `
			UPDATE user_challenges SET completed = true, completed_at = $4, updated_at = $4
			WHERE user_id = $1 AND challenge_id = $2 AND deadline = $3 AND completed = false`
		args = []interface{}{key.UserID, key.ID, key.Deadline, at}
	default:
		return false, 0, fmt.Errorf("unknown progress kind %q", key.Kind)
	}

	var (
		applied bool
		total   int
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("mark %s %s completed: %w", key.Kind, key.ID, err)
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		applied = true
		total, err = upsertPoints(ctx, tx, key.UserID, bonus, at)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return applied, total, nil
}

func (s *PostgresStore) GetPoints(ctx context.Context, userID string) (*domain.UserPoints, error) {
	var p domain.UserPoints
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, total_points, last_activity
		FROM user_points WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.TotalPoints, &p.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user points: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, userID string, limit int) ([]domain.ActivityEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, action_type, description, points, metadata, created_at
		FROM activity_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ActionType, &e.Description, &e.Points, &e.Metadata, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAchievements(ctx context.Context, userID string) ([]domain.AchievementProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, achievement_id, progress, completed, completed_at, updated_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY achievement_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var out []domain.AchievementProgress
	for rows.Next() {
		var a domain.AchievementProgress
		if err := rows.Scan(&a.UserID, &a.AchievementID, &a.Progress, &a.Completed, &a.CompletedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListChallenges(ctx context.Context, userID string, activeAt time.Time) ([]domain.ChallengeProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, challenge_id, deadline, progress, completed, completed_at, updated_at
		FROM user_challenges
		WHERE user_id = $1 AND deadline > $2
		ORDER BY challenge_id, deadline`, userID, activeAt)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var out []domain.ChallengeProgress
	for rows.Next() {
		var c domain.ChallengeProgress
		if err := rows.Scan(&c.UserID, &c.ChallengeID, &c.Deadline, &c.Progress, &c.Completed, &c.CompletedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ROW_NUMBER() OVER (ORDER BY total_points DESC, user_id ASC), user_id, total_points
		FROM user_points
		ORDER BY total_points DESC, user_id ASC
		LIMIT $1`, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.UserID, &e.TotalPoints); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_challenges WHERE deadline < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
