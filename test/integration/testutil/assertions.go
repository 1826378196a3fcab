//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// AssertTotalPoints queries user_points and asserts the user's running total.
func AssertTotalPoints(t *testing.T, env *TestEnv, userID string, expected int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var total int
	err := env.Pool.QueryRow(ctx,
		"SELECT total_points FROM user_points WHERE user_id = $1", userID).Scan(&total)
	if err != nil {
		t.Fatalf("AssertTotalPoints: query: %v", err)
	}
	if total != expected {
		t.Errorf("total_points: expected %d, got %d", expected, total)
	}
}

// CountActivity returns the number of activity entries for a user.
func CountActivity(t *testing.T, env *TestEnv, userID string) int {
	t.Helper()
	return env.count("SELECT COUNT(*) FROM activity_log WHERE user_id = $1", userID)
}

// CountOutboxEvents returns the number of outbox events keyed by a user.
func CountOutboxEvents(t *testing.T, env *TestEnv, userID string) int {
	t.Helper()
	return env.count("SELECT COUNT(*) FROM event_outbox WHERE aggregate_id = $1", userID)
}

// CountCompletedAchievements returns how many achievements a user has completed.
func CountCompletedAchievements(t *testing.T, env *TestEnv, userID string) int {
	t.Helper()
	return env.count("SELECT COUNT(*) FROM user_achievements WHERE user_id = $1 AND completed", userID)
}

func (env *TestEnv) count(query string, args ...interface{}) int {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var n int
	if err := env.Pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		env.t.Fatalf("count: %v", err)
	}
	return n
}
