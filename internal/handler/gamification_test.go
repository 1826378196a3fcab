package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/schoolerp/gamification/internal/auth"
	"github.com/schoolerp/gamification/internal/catalog"
	"github.com/schoolerp/gamification/internal/domain"
	"github.com/schoolerp/gamification/internal/guard"
	"github.com/schoolerp/gamification/internal/ledger"
	"github.com/schoolerp/gamification/internal/progress"
	"github.com/schoolerp/gamification/internal/repository"
	"github.com/schoolerp/gamification/internal/schedule"
	"github.com/schoolerp/gamification/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downStore struct {
	*repository.MemoryStore
}

func (downStore) AddPoints(context.Context, string, int, time.Time, *domain.ActivityEntry) (int, error) {
	return 0, errors.New("dial tcp: connection refused")
}

func (downStore) Ping(context.Context) error { return errors.New("dial tcp: connection refused") }

// progressDownStore saves points but fails every counter increment.
type progressDownStore struct {
	*repository.MemoryStore
}

func (progressDownStore) IncrementProgress(context.Context, domain.ProgressKey, time.Time) (domain.Progress, error) {
	return domain.Progress{}, errors.New("write conflict")
}

func newTestService(store repository.Store) *service.GamificationService {
	cat := catalog.Default()
	l := ledger.New(store, cat)
	eval := progress.NewEvaluator(store, l, cat, schedule.NewCalendarWindows(nil))
	return service.NewGamificationService(store, cat, l, eval, nil, noopLogger())
}

func authed(r *http.Request, userID, role string) *http.Request {
	claims := &auth.Claims{Role: role, SchoolID: "school-1"}
	claims.Subject = userID
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func completeRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/gamification/actions/complete", bytes.NewBufferString(body))
	return authed(r, "user-1", auth.RoleTeacher)
}

func TestCompleteAction(t *testing.T) {
	h := NewGamificationHandler(newTestService(repository.NewMemoryStore()), nil, nil, nil, noopLogger())

	w := httptest.NewRecorder()
	h.CompleteAction(w, completeRequest(t, `{"actionType":"message_send","metadata":{"to":"class-4b"}}`))

	require.Equal(t, http.StatusOK, w.Code)
	var body service.ActionResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, 5, body.Points)
	assert.Equal(t, "Action completed! +5 points earned", body.Message)
	assert.Equal(t, 5, body.TotalPoints)
}

func TestCompleteAction_Validation(t *testing.T) {
	h := NewGamificationHandler(newTestService(repository.NewMemoryStore()), nil, nil, nil, noopLogger())

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing actionType", `{}`, "actionType is required"},
		{"blank actionType", `{"actionType":"   "}`, "actionType is required"},
		{"too long", `{"actionType":"` + string(bytes.Repeat([]byte("a"), 257)) + `"}`, "actionType exceeds 256 characters"},
		{"metadata array", `{"actionType":"daily_login","metadata":[1]}`, "metadata must be a JSON object"},
		{"malformed body", `{`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.CompleteAction(w, completeRequest(t, tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, "VALIDATION_ERROR", body["code"])
			assert.Equal(t, tt.wantMsg, body["message"])
		})
	}
}

func TestCompleteAction_StorageFailureIsGeneric(t *testing.T) {
	h := NewGamificationHandler(newTestService(downStore{repository.NewMemoryStore()}), nil, nil, nil, noopLogger())

	w := httptest.NewRecorder()
	h.CompleteAction(w, completeRequest(t, `{"actionType":"daily_login"}`))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to complete action", body["message"])
	assert.NotContains(t, body, "points")
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestCompleteAction_Unauthenticated(t *testing.T) {
	h := NewGamificationHandler(newTestService(repository.NewMemoryStore()), nil, nil, nil, noopLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/gamification/actions/complete", bytes.NewBufferString(`{"actionType":"daily_login"}`))
	h.CompleteAction(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCompleteAction_IdempotencyKey(t *testing.T) {
	store := repository.NewMemoryStore()
	idem, err := guard.NewIdempotencyGuard(100)
	require.NoError(t, err)
	h := NewGamificationHandler(newTestService(store), idem, nil, nil, noopLogger())

	send := func() int {
		r := completeRequest(t, `{"actionType":"student_add"}`)
		r.Header.Set(IdempotencyHeader, "form-submit-1")
		w := httptest.NewRecorder()
		h.CompleteAction(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusConflict, send())

	rec, err := store.GetPoints(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 25, rec.TotalPoints)
}

func TestCompleteAction_FailureReleasesIdempotencyKey(t *testing.T) {
	idem, err := guard.NewIdempotencyGuard(100)
	require.NoError(t, err)
	h := NewGamificationHandler(newTestService(downStore{repository.NewMemoryStore()}), idem, nil, nil, noopLogger())

	r := completeRequest(t, `{"actionType":"daily_login"}`)
	r.Header.Set(IdempotencyHeader, "retry-me")
	h.CompleteAction(httptest.NewRecorder(), r)

	assert.True(t, idem.Check(context.Background(), "user-1", "retry-me").Allowed)
}

func TestCompleteAction_SavedCreditKeepsIdempotencyKey(t *testing.T) {
	store := progressDownStore{repository.NewMemoryStore()}
	idem, err := guard.NewIdempotencyGuard(100)
	require.NoError(t, err)
	h := NewGamificationHandler(newTestService(store), idem, nil, nil, noopLogger())

	send := func() int {
		r := completeRequest(t, `{"actionType":"iso_submission"}`)
		r.Header.Set(IdempotencyHeader, "iso-form-1")
		w := httptest.NewRecorder()
		h.CompleteAction(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusInternalServerError, send())
	assert.Equal(t, http.StatusConflict, send(), "retry must not credit again")

	rec, err := store.GetPoints(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 40, rec.TotalPoints)
}

func TestCompleteAction_RateLimited(t *testing.T) {
	h := NewGamificationHandler(newTestService(repository.NewMemoryStore()), nil, guard.NewRateLimiter(1, time.Minute), nil, noopLogger())

	w := httptest.NewRecorder()
	h.CompleteAction(w, completeRequest(t, `{"actionType":"daily_login"}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.CompleteAction(w, completeRequest(t, `{"actionType":"daily_login"}`))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestReadEndpoints(t *testing.T) {
	svc := newTestService(repository.NewMemoryStore())
	h := NewGamificationHandler(svc, nil, nil, nil, noopLogger())
	ctx := context.Background()

	_, err := svc.ProcessAction(ctx, "user-1", "iso_submission", nil)
	require.NoError(t, err)
	_, err = svc.ProcessAction(ctx, "user-1", "document_upload", nil)
	require.NoError(t, err)
	_, err = svc.ProcessAction(ctx, "user-2", "message_send", nil)
	require.NoError(t, err)

	get := func(fn http.HandlerFunc, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		fn(w, authed(httptest.NewRequest(http.MethodGet, target, nil), "user-1", auth.RoleStaff))
		return w
	}

	t.Run("summary", func(t *testing.T) {
		w := get(h.GetSummary, "/gamification/me")
		require.Equal(t, http.StatusOK, w.Code)
		var rec domain.UserPoints
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rec))
		assert.Equal(t, 40+500+15, rec.TotalPoints)
	})

	t.Run("activity newest first", func(t *testing.T) {
		w := get(h.ListActivity, "/gamification/me/activity?limit=1")
		require.Equal(t, http.StatusOK, w.Code)
		var entries []domain.ActivityEntry
		require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "document_upload", entries[0].ActionType)
	})

	t.Run("bad limit", func(t *testing.T) {
		w := get(h.ListActivity, "/gamification/me/activity?limit=abc")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("achievements", func(t *testing.T) {
		w := get(h.ListAchievements, "/gamification/me/achievements")
		require.Equal(t, http.StatusOK, w.Code)
		var views []service.AchievementView
		require.NoError(t, json.NewDecoder(w.Body).Decode(&views))
		assert.Len(t, views, 2)
	})

	t.Run("challenges", func(t *testing.T) {
		w := get(h.ListChallenges, "/gamification/me/challenges")
		require.Equal(t, http.StatusOK, w.Code)
		var views []service.ChallengeView
		require.NoError(t, json.NewDecoder(w.Body).Decode(&views))
		assert.Len(t, views, 2)
	})

	t.Run("leaderboard", func(t *testing.T) {
		w := get(h.Leaderboard, "/gamification/leaderboard")
		require.Equal(t, http.StatusOK, w.Code)
		var board []domain.LeaderboardEntry
		require.NoError(t, json.NewDecoder(w.Body).Decode(&board))
		require.Len(t, board, 2)
		assert.Equal(t, "user-1", board[0].UserID)
		assert.Equal(t, 1, board[0].Rank)
	})

	t.Run("catalog", func(t *testing.T) {
		w := get(h.Catalog, "/gamification/catalog")
		require.Equal(t, http.StatusOK, w.Code)
		var entries []service.CatalogEntry
		require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
		assert.NotEmpty(t, entries)
	})
}

func TestTrackHandler(t *testing.T) {
	store := repository.NewMemoryStore()
	h := NewTrackHandler(newTestService(store), nil, noopLogger())

	w := httptest.NewRecorder()
	h.Track(w, httptest.NewRequest(http.MethodPost, "/internal/actions/track",
		bytes.NewBufferString(`{"userId":"user-5","actionType":"attendance_record"}`)))
	require.Equal(t, http.StatusAccepted, w.Code)

	rec, err := store.GetPoints(context.Background(), "user-5")
	require.NoError(t, err)
	assert.Equal(t, 15, rec.TotalPoints)

	w = httptest.NewRecorder()
	h.Track(w, httptest.NewRequest(http.MethodPost, "/internal/actions/track",
		bytes.NewBufferString(`{"actionType":"attendance_record"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackHandler_StorageFailureStillAccepted(t *testing.T) {
	h := NewTrackHandler(newTestService(downStore{repository.NewMemoryStore()}), nil, noopLogger())

	w := httptest.NewRecorder()
	h.Track(w, httptest.NewRequest(http.MethodPost, "/internal/actions/track",
		bytes.NewBufferString(`{"userId":"user-5","actionType":"daily_login"}`)))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler(repository.NewMemoryStore())(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = httptest.NewRecorder()
	HealthHandler(downStore{repository.NewMemoryStore()})(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}
