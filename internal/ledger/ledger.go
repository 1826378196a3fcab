package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/gamification/internal/catalog"
	"github.com/schoolerp/gamification/internal/domain"
	"github.com/schoolerp/gamification/internal/repository"
)

// Ledger credits points to users. It provides 3 write operations:
//  1. Credit: resolve the action's points, upsert-increment the total and
//     append an activity entry
//  2. CreditBonus: upsert-increment the total only (completion bonuses are
//     not logged as activity)
//  3. AwardCompletion: complete a progress record and credit its bonus as
//     one unit
type Ledger struct {
	store   repository.Store
	catalog *catalog.Catalog
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for lastActivity and timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over the given store and point economy.
func New(store repository.Store, cat *catalog.Catalog, opts ...Option) *Ledger {
	l := &Ledger{store: store, catalog: cat, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreditResult is the outcome of crediting one action.
type CreditResult struct {
	Entry       domain.ActivityEntry
	TotalPoints int
}

// Credit awards the catalog points for actionType to userID and logs it.
// metadata is stored verbatim; it must already be a JSON object.
func (l *Ledger) Credit(ctx context.Context, userID, actionType string, metadata json.RawMessage) (*CreditResult, error) {
	now := l.now().UTC()
	entry := domain.ActivityEntry{
		ID:          uuid.New(),
		UserID:      userID,
		ActionType:  actionType,
		Description: l.catalog.DescriptionFor(actionType),
		Points:      l.catalog.PointsFor(actionType),
		Metadata:    metadata,
		Timestamp:   now,
	}
	if entry.Metadata == nil {
		entry.Metadata = json.RawMessage(`{}`)
	}

	total, err := l.store.AddPoints(ctx, userID, entry.Points, now, &entry)
	if err != nil {
		return nil, domain.ErrStorage("credit points", fmt.Errorf("user %s action %s: %w", userID, actionType, err))
	}
	return &CreditResult{Entry: entry, TotalPoints: total}, nil
}

// CreditBonus adds points to userID's total without an activity entry.
func (l *Ledger) CreditBonus(ctx context.Context, userID string, points int) (int, error) {
	if points < 0 {
		return 0, domain.ErrValidation(fmt.Sprintf("bonus must not be negative, got %d", points))
	}
	total, err := l.store.AddPoints(ctx, userID, points, l.now().UTC(), nil)
	if err != nil {
		return 0, domain.ErrStorage("credit bonus", fmt.Errorf("user %s: %w", userID, err))
	}
	return total, nil
}

// AwardCompletion marks key completed and credits bonus to its user in one
// store write. applied is false when the record was already completed, in
// which case nothing is credited.
func (l *Ledger) AwardCompletion(ctx context.Context, key domain.ProgressKey, bonus int) (applied bool, total int, err error) {
	if bonus < 0 {
		return false, 0, domain.ErrValidation(fmt.Sprintf("bonus must not be negative, got %d", bonus))
	}
	applied, total, err = l.store.CompleteAndCredit(ctx, key, bonus, l.now().UTC())
	if err != nil {
		return false, 0, domain.ErrStorage("award completion", fmt.Errorf("%s %s for user %s: %w", key.Kind, key.ID, key.UserID, err))
	}
	return applied, total, nil
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time {
	return l.now().UTC()
}
