package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/schoolerp/gamification/internal/catalog"
	"github.com/schoolerp/gamification/internal/ledger"
	"github.com/schoolerp/gamification/internal/progress"
	"github.com/schoolerp/gamification/internal/repository"
	"github.com/schoolerp/gamification/internal/schedule"
	"github.com/schoolerp/gamification/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (http.Handler, *service.GamificationService) {
	t.Helper()
	store := repository.NewMemoryStore()
	cat := catalog.Default()
	l := ledger.New(store, cat)
	eval := progress.NewEvaluator(store, l, cat, schedule.NewCalendarWindows(nil))
	svc := service.NewGamificationService(store, cat, l, eval, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Get("/admin/users/{userID}/gamification", NewGamificationAdminHandler(svc).GetUser)
	return r, svc
}

func TestGetUser(t *testing.T) {
	router, svc := newRouter(t)
	_, err := svc.ProcessAction(context.Background(), "teacher-7", "club_create", nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/users/teacher-7/gamification", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body userDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 35, body.Points.TotalPoints)
	require.Len(t, body.Achievements, 1)
	assert.Equal(t, "club_creator", body.Achievements[0].AchievementID)
	assert.Equal(t, 3, body.Achievements[0].Target)
	assert.Empty(t, body.Challenges)
	assert.Len(t, body.RecentActivity, 1)
}

func TestGetUser_Unknown(t *testing.T) {
	router, _ := newRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/users/ghost/gamification", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body userDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ghost", body.Points.UserID)
	assert.Zero(t, body.Points.TotalPoints)
	assert.NotNil(t, body.RecentActivity)
}
