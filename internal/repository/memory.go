package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/schoolerp/gamification/internal/domain"
)

type progressRecord struct {
	progress    int
	completed   bool
	completedAt *time.Time
	updatedAt   time.Time
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu           sync.Mutex
	points       map[string]*domain.UserPoints
	activity     map[string][]domain.ActivityEntry
	achievements map[domain.ProgressKey]*progressRecord
	challenges   map[domain.ProgressKey]*progressRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		points:       make(map[string]*domain.UserPoints),
		activity:     make(map[string][]domain.ActivityEntry),
		achievements: make(map[domain.ProgressKey]*progressRecord),
		challenges:   make(map[domain.ProgressKey]*progressRecord),
	}
}

func (s *MemoryStore) AddPoints(_ context.Context, userID string, delta int, at time.Time, entry *domain.ActivityEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry != nil {
		e := *entry
		e.Metadata = append(json.RawMessage(nil), entry.Metadata...)
		s.activity[userID] = append(s.activity[userID], e)
	}
	return s.addPointsLocked(userID, delta, at), nil
}

func (s *MemoryStore) addPointsLocked(userID string, delta int, at time.Time) int {
	rec, ok := s.points[userID]
	if !ok {
		rec = &domain.UserPoints{UserID: userID}
		s.points[userID] = rec
	}
	rec.TotalPoints += delta
	rec.LastActivity = at
	return rec.TotalPoints
}

func (s *MemoryStore) IncrementProgress(_ context.Context, key domain.ProgressKey, at time.Time) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.table(key.Kind)
	if key.Kind == domain.KindChallenge && !key.Deadline.After(at) {
		return domain.Progress{}, ErrWindowClosed
	}
	rec, ok := table[key]
	if !ok {
		rec = &progressRecord{}
		table[key] = rec
	}
	rec.progress++
	rec.updatedAt = at
	return domain.Progress{Key: key, Progress: rec.progress, Completed: rec.completed, CompletedAt: rec.completedAt}, nil
}

func (s *MemoryStore) CompleteAndCredit(_ context.Context, key domain.ProgressKey, bonus int, at time.Time) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table(key.Kind)[key]
	if !ok || rec.completed {
		return false, 0, nil
	}
	ts := at
	rec.completed = true
	rec.completedAt = &ts
	rec.updatedAt = at
	return true, s.addPointsLocked(key.UserID, bonus, at), nil
}

func (s *MemoryStore) GetPoints(_ context.Context, userID string) (*domain.UserPoints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.points[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListActivity(_ context.Context, userID string, limit int) ([]domain.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.activity[userID]
	entries := make([]domain.ActivityEntry, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		entries = append(entries, src[i])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit = ClampLimit(limit); len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStore) ListAchievements(_ context.Context, userID string) ([]domain.AchievementProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AchievementProgress
	for key, rec := range s.achievements {
		if key.UserID != userID {
			continue
		}
		out = append(out, domain.AchievementProgress{
			UserID:        key.UserID,
			AchievementID: key.ID,
			Progress:      rec.progress,
			Completed:     rec.completed,
			CompletedAt:   rec.completedAt,
			UpdatedAt:     rec.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (s *MemoryStore) ListChallenges(_ context.Context, userID string, activeAt time.Time) ([]domain.ChallengeProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ChallengeProgress
	for key, rec := range s.challenges {
		if key.UserID != userID || !key.Deadline.After(activeAt) {
			continue
		}
		out = append(out, domain.ChallengeProgress{
			UserID:      key.UserID,
			ChallengeID: key.ID,
			Deadline:    key.Deadline,
			Progress:    rec.progress,
			Completed:   rec.completed,
			CompletedAt: rec.completedAt,
			UpdatedAt:   rec.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChallengeID != out[j].ChallengeID {
			return out[i].ChallengeID < out[j].ChallengeID
		}
		return out[i].Deadline.Before(out[j].Deadline)
	})
	return out, nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.LeaderboardEntry, 0, len(s.points))
	for _, rec := range s.points {
		out = append(out, domain.LeaderboardEntry{UserID: rec.UserID, TotalPoints: rec.TotalPoints})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].UserID < out[j].UserID
	})
	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (s *MemoryStore) DeleteExpiredChallenges(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key := range s.challenges {
		if key.Deadline.Before(before) {
			delete(s.challenges, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) table(kind domain.ProgressKind) map[domain.ProgressKey]*progressRecord {
	if kind == domain.KindChallenge {
		return s.challenges
	}
	return s.achievements
}
