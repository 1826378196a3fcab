package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/schoolerp/gamification/internal/catalog"
	"github.com/schoolerp/gamification/internal/domain"
	"github.com/schoolerp/gamification/internal/events"
	"github.com/schoolerp/gamification/internal/ledger"
	"github.com/schoolerp/gamification/internal/progress"
	"github.com/schoolerp/gamification/internal/repository"
)

// GamificationService is the single entry point for crediting actions. The
// HTTP endpoint calls ProcessAction; side-effect tracking attached to other
// operations calls Track. Both run the same pipeline:
//
//	ledger credit -> achievement pass -> challenge pass -> publish events
type GamificationService struct {
	store     repository.Store
	catalog   *catalog.Catalog
	ledger    *ledger.Ledger
	evaluator *progress.Evaluator
	publisher events.Publisher
	logger    *slog.Logger
}

// NewGamificationService creates a GamificationService.
func NewGamificationService(
	store repository.Store,
	cat *catalog.Catalog,
	l *ledger.Ledger,
	evaluator *progress.Evaluator,
	publisher events.Publisher,
	logger *slog.Logger,
) *GamificationService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &GamificationService{
		store:     store,
		catalog:   cat,
		ledger:    l,
		evaluator: evaluator,
		publisher: publisher,
		logger:    logger,
	}
}

// ActionResult is reported back to the caller of ProcessAction.
type ActionResult struct {
	Success     bool                `json:"success"`
	Points      int                 `json:"points"`
	Message     string              `json:"message"`
	BonusPoints int                 `json:"bonusPoints"`
	TotalPoints int                 `json:"totalPoints"`
	Completed   []domain.Completion `json:"completed"`
}

// PartialCreditError reports that the action's points were saved but
// progress evaluation failed afterwards. Replaying the request would credit
// the points a second time.
type PartialCreditError struct {
	Entry domain.ActivityEntry
	Err   error
}

func (e *PartialCreditError) Error() string {
	return fmt.Sprintf("action %s credited, progress failed: %v", e.Entry.ActionType, e.Err)
}

func (e *PartialCreditError) Unwrap() error { return e.Err }

// ProcessAction credits actionType to userID and advances progress.
// Unknown action types succeed with the default point value.
func (s *GamificationService) ProcessAction(ctx context.Context, userID, actionType string, metadata json.RawMessage) (*ActionResult, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateActionType(actionType); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	meta, err := domain.NormalizeMetadata(metadata)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	credit, err := s.ledger.Credit(ctx, userID, actionType, meta)
	if err != nil {
		return nil, fmt.Errorf("process action: %w", err)
	}

	outcome, err := s.evaluator.Evaluate(ctx, userID, actionType)
	if err != nil {
		// The credit and any completions already awarded are committed.
		s.publish(ctx, credit.Entry, outcome)
		return nil, &PartialCreditError{Entry: credit.Entry, Err: err}
	}

	s.publish(ctx, credit.Entry, outcome)

	completed := outcome.Completions
	if completed == nil {
		completed = []domain.Completion{}
	}
	return &ActionResult{
		Success:     true,
		Points:      credit.Entry.Points,
		Message:     fmt.Sprintf("Action completed! +%d points earned", credit.Entry.Points),
		BonusPoints: outcome.BonusPoints,
		TotalPoints: credit.TotalPoints + outcome.BonusPoints,
		Completed:   completed,
	}, nil
}

// Track runs ProcessAction as a side effect of another operation. Failures
// are logged and swallowed so the primary operation is unaffected.
func (s *GamificationService) Track(ctx context.Context, userID, actionType string, metadata json.RawMessage) {
	res, err := s.ProcessAction(ctx, userID, actionType, metadata)
	if err != nil {
		s.logger.Error("gamification tracking failed",
			"user_id", userID,
			"action_type", actionType,
			"error", err,
		)
		return
	}
	s.logger.Debug("gamification action tracked",
		"user_id", userID,
		"action_type", actionType,
		"points", res.Points,
		"bonus_points", res.BonusPoints,
	)
}

func (s *GamificationService) publish(ctx context.Context, entry domain.ActivityEntry, outcome *progress.Outcome) {
	drafts := []domain.OutboxDraft{domain.NewPointsCreditedEvent(entry, outcome.BonusPoints)}
	for _, c := range outcome.Completions {
		drafts = append(drafts, domain.NewCompletionEvent(entry.UserID, c, entry.Timestamp))
	}
	if err := s.publisher.Publish(ctx, drafts...); err != nil {
		s.logger.Warn("publish gamification events failed",
			"user_id", entry.UserID,
			"events", len(drafts),
			"error", err,
		)
	}
}

// Summary returns the user's points record; users with no credited
// actions get a zero record.
func (s *GamificationService) Summary(ctx context.Context, userID string) (*domain.UserPoints, error) {
	rec, err := s.store.GetPoints(ctx, userID)
	if err != nil {
		return nil, domain.ErrStorage("get points", err)
	}
	if rec == nil {
		return &domain.UserPoints{UserID: userID}, nil
	}
	return rec, nil
}

// Activity returns the newest activity entries first.
func (s *GamificationService) Activity(ctx context.Context, userID string, limit int) ([]domain.ActivityEntry, error) {
	entries, err := s.store.ListActivity(ctx, userID, limit)
	if err != nil {
		return nil, domain.ErrStorage("list activity", err)
	}
	return entries, nil
}

// AchievementView joins a user's record with the achievement rule.
type AchievementView struct {
	domain.AchievementProgress
	Target int `json:"target"`
	Bonus  int `json:"bonus"`
}

// Achievements returns the user's achievement records with their targets.
func (s *GamificationService) Achievements(ctx context.Context, userID string) ([]AchievementView, error) {
	recs, err := s.store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, domain.ErrStorage("list achievements", err)
	}
	out := make([]AchievementView, 0, len(recs))
	for _, r := range recs {
		rule := s.catalog.Achievement(r.AchievementID)
		out = append(out, AchievementView{AchievementProgress: r, Target: rule.Target, Bonus: rule.Bonus})
	}
	return out, nil
}

// ChallengeView joins a user's record with the challenge rule.
type ChallengeView struct {
	domain.ChallengeProgress
	Target int `json:"target"`
	Bonus  int `json:"bonus"`
}

// Challenges returns the user's challenge records in open windows.
func (s *GamificationService) Challenges(ctx context.Context, userID string) ([]ChallengeView, error) {
	recs, err := s.store.ListChallenges(ctx, userID, s.ledger.Now())
	if err != nil {
		return nil, domain.ErrStorage("list challenges", err)
	}
	out := make([]ChallengeView, 0, len(recs))
	for _, r := range recs {
		rule := s.catalog.Challenge(r.ChallengeID)
		out = append(out, ChallengeView{ChallengeProgress: r, Target: rule.Target, Bonus: rule.Bonus})
	}
	return out, nil
}

// Leaderboard returns the top users by total points.
func (s *GamificationService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	board, err := s.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, domain.ErrStorage("leaderboard", err)
	}
	return board, nil
}

// CatalogEntry is one row of the published action table.
type CatalogEntry struct {
	ActionType   string   `json:"actionType"`
	Points       int      `json:"points"`
	Description  string   `json:"description"`
	Achievements []string `json:"achievements"`
	Challenges   []string `json:"challenges"`
}

// Catalog lists every known action type with what it earns and advances.
func (s *GamificationService) Catalog() []CatalogEntry {
	types := s.catalog.ActionTypes()
	out := make([]CatalogEntry, 0, len(types))
	for _, t := range types {
		out = append(out, CatalogEntry{
			ActionType:   t,
			Points:       s.catalog.PointsFor(t),
			Description:  s.catalog.DescriptionFor(t),
			Achievements: nonNil(s.catalog.AchievementsFor(t)),
			Challenges:   nonNil(s.catalog.ChallengesFor(t)),
		})
	}
	return out
}

// SweepExpiredChallenges removes challenge records whose window closed
// more than retention ago.
func (s *GamificationService) SweepExpiredChallenges(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.ledger.Now().Add(-retention)
	n, err := s.store.DeleteExpiredChallenges(ctx, cutoff)
	if err != nil {
		return 0, domain.ErrStorage("sweep expired challenges", err)
	}
	if n > 0 {
		s.logger.Info("expired challenge records removed", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Ping checks the backing store.
func (s *GamificationService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
