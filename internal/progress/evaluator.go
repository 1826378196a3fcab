package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/schoolerp/gamification/internal/catalog"
	"github.com/schoolerp/gamification/internal/domain"
	"github.com/schoolerp/gamification/internal/ledger"
	"github.com/schoolerp/gamification/internal/repository"
)

// WindowSource supplies the deadline of the challenge window open at now.
// ok is false when no window is open for the challenge.
type WindowSource interface {
	ActiveDeadline(challengeID string, now time.Time) (deadline time.Time, ok bool)
}

// Evaluator advances achievement and challenge counters for an action and
// credits completion bonuses back into the ledger.
type Evaluator struct {
	store   repository.Store
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	windows WindowSource
}

// NewEvaluator creates an evaluator. Bonuses are credited through l.
func NewEvaluator(store repository.Store, l *ledger.Ledger, cat *catalog.Catalog, windows WindowSource) *Evaluator {
	return &Evaluator{store: store, ledger: l, catalog: cat, windows: windows}
}

// Outcome lists what an action advanced and what it completed.
type Outcome struct {
	Achievements []domain.Progress
	Challenges   []domain.Progress
	Completions  []domain.Completion
	BonusPoints  int
}

// Evaluate runs the achievement pass, then the challenge pass, for one
// credited action. Steps run strictly in order. On error the outcome holds
// whatever was applied before the failure.
//
// A counter completes when its post-increment progress reaches the target
// and it was not completed before. The completed flag and the bonus are
// written together by one conditional store write, so a bonus is awarded at
// most once per record and a failed award leaves the record open for the
// next action.
func (e *Evaluator) Evaluate(ctx context.Context, userID, actionType string) (*Outcome, error) {
	out := &Outcome{}
	now := e.ledger.Now()

	for _, id := range e.catalog.AchievementsFor(actionType) {
		rule := e.catalog.Achievement(id)
		p, done, err := e.advance(ctx, domain.AchievementKey(userID, id), rule, now)
		if err != nil {
			return out, err
		}
		out.Achievements = append(out.Achievements, p)
		if done {
			out.Completions = append(out.Completions, domain.Completion{
				Kind: domain.KindAchievement, ID: id, BonusPoints: rule.Bonus,
			})
			out.BonusPoints += rule.Bonus
		}
	}

	for _, id := range e.catalog.ChallengesFor(actionType) {
		deadline, ok := e.windows.ActiveDeadline(id, now)
		if !ok || !deadline.After(now) {
			continue
		}
		rule := e.catalog.Challenge(id)
		key := domain.ChallengeKey(userID, id, deadline)
		p, done, err := e.advance(ctx, key, rule, now)
		if errors.Is(err, repository.ErrWindowClosed) {
			continue
		}
		if err != nil {
			return out, err
		}
		out.Challenges = append(out.Challenges, p)
		if done {
			d := key.Deadline
			out.Completions = append(out.Completions, domain.Completion{
				Kind: domain.KindChallenge, ID: id, BonusPoints: rule.Bonus, Deadline: &d,
			})
			out.BonusPoints += rule.Bonus
		}
	}

	return out, nil
}

func (e *Evaluator) advance(ctx context.Context, key domain.ProgressKey, rule catalog.Rule, now time.Time) (domain.Progress, bool, error) {
	p, err := e.store.IncrementProgress(ctx, key, now)
	if errors.Is(err, repository.ErrWindowClosed) {
		return p, false, err
	}
	if err != nil {
		return p, false, domain.ErrStorage("increment progress", err)
	}

	if p.Completed || p.Progress < rule.Target {
		return p, false, nil
	}

	applied, _, err := e.ledger.AwardCompletion(ctx, key, rule.Bonus)
	if err != nil {
		return p, false, fmt.Errorf("%s %s bonus: %w", key.Kind, key.ID, err)
	}
	if !applied {
		// A concurrent action completed this record first.
		p.Completed = true
		return p, false, nil
	}
	p.Completed = true
	p.CompletedAt = &now
	return p, true, nil
}
