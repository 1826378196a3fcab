//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/schoolerp/gamification/internal/auth"
	"github.com/schoolerp/gamification/test/integration/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrack_ModuleCreditsUser(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token := env.ServiceToken("attendance", auth.ScopeTrackActions)
	userID := uuid.NewString()

	resp := env.POSTWithHeaders("/internal/actions/track", map[string]interface{}{
		"userId":     userID,
		"actionType": "attendance_record",
		"metadata":   map[string]string{"classId": "7B"},
	}, map[string]string{"Authorization": "Bearer " + token})
	testutil.AssertStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()

	testutil.AssertTotalPoints(t, env, userID, 15)
	assert.Equal(t, 1, testutil.CountActivity(t, env, userID))
}

func TestTrack_RequiresScope(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token := env.ServiceToken("library")

	resp := env.POSTWithHeaders("/internal/actions/track", map[string]string{
		"userId": uuid.NewString(), "actionType": "daily_login",
	}, map[string]string{"Authorization": "Bearer " + token})
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestTrack_RejectsUserJWT(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.UserToken(auth.RoleSuperAdmin)

	resp := env.POSTWithHeaders("/internal/actions/track", map[string]string{
		"userId": userID, "actionType": "daily_login",
	}, map[string]string{"Authorization": "Bearer " + token})
	testutil.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
	assert.Zero(t, testutil.CountActivity(t, env, userID))
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.GET("/gamification/me")
	testutil.AssertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = env.GET("/health")
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}
