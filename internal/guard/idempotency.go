package guard

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultIdempotencyCacheSize bounds the remembered keys when no size is set.
const DefaultIdempotencyCacheSize = 10000

// IdempotencyGuard deduplicates action requests by (user, idempotency key).
// Keys are kept in a bounded LRU; the oldest keys are forgotten first.
type IdempotencyGuard struct {
	seen *lru.Cache
}

// NewIdempotencyGuard creates an in-memory idempotency guard holding at most
// size keys.
func NewIdempotencyGuard(size int) (*IdempotencyGuard, error) {
	if size <= 0 {
		size = DefaultIdempotencyCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("idempotency cache: %w", err)
	}
	return &IdempotencyGuard{seen: cache}, nil
}

// Check returns whether the key has already been processed for userID and
// records it when it has not. An empty key is always allowed.
func (ig *IdempotencyGuard) Check(_ context.Context, userID, key string) Result {
	if key == "" {
		return allow()
	}
	if found, _ := ig.seen.ContainsOrAdd(scopedKey(userID, key), struct{}{}); found {
		return Result{
			Allowed: false,
			Reason:  "duplicate request: idempotency key already processed",
			Guard:   "idempotency",
		}
	}
	return allow()
}

// Remove forgets a key so a failed request can be retried.
func (ig *IdempotencyGuard) Remove(userID, key string) {
	ig.seen.Remove(scopedKey(userID, key))
}

// Len reports how many keys are remembered.
func (ig *IdempotencyGuard) Len() int {
	return ig.seen.Len()
}

func scopedKey(userID, key string) string {
	return userID + "\x00" + key
}
