//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every gamification table.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"event_outbox",
		"user_challenges",
		"user_achievements",
		"activity_log",
		"user_points",
	}

	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
}
