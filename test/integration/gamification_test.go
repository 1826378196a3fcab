//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/schoolerp/gamification/internal/auth"
	"github.com/schoolerp/gamification/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type actionResponse struct {
	Success     bool   `json:"success"`
	Points      int    `json:"points"`
	Message     string `json:"message"`
	BonusPoints int    `json:"bonusPoints"`
	TotalPoints int    `json:"totalPoints"`
	Completed   []struct {
		Kind        string `json:"kind"`
		ID          string `json:"id"`
		BonusPoints int    `json:"bonusPoints"`
	} `json:"completed"`
}

// ─── Action Tests ──────────────────────────────────────────────────────────

func TestCompleteAction_CreditsPointsAndLogs(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.UserToken(auth.RoleTeacher)

	resp := env.CompleteAction(token, "daily_login")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result actionResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, 10, result.Points)
	assert.Equal(t, "Action completed! +10 points earned", result.Message)
	assert.Empty(t, result.Completed)

	testutil.AssertTotalPoints(t, env, userID, 10)
	assert.Equal(t, 1, testutil.CountActivity(t, env, userID))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, env, userID))
}

func TestCompleteAction_AchievementBonus(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.UserToken(auth.RoleSchoolAdmin)

	resp := env.CompleteAction(token, "iso_submission")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result actionResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, 40, result.Points)
	assert.Equal(t, 500, result.BonusPoints)
	assert.Equal(t, 540, result.TotalPoints)
	require.Len(t, result.Completed, 1)
	assert.Equal(t, "iso_compliance", result.Completed[0].ID)

	// The bonus is not logged as activity.
	testutil.AssertTotalPoints(t, env, userID, 540)
	assert.Equal(t, 1, testutil.CountActivity(t, env, userID))
	assert.Equal(t, 1, testutil.CountCompletedAchievements(t, env, userID))

	// A second submission keeps the achievement completed without a new bonus.
	resp = env.CompleteAction(token, "iso_submission")
	testutil.DecodeJSON(t, resp, &result)
	assert.Zero(t, result.BonusPoints)
	testutil.AssertTotalPoints(t, env, userID, 580)
}

func TestCompleteAction_UnknownActionUsesDefault(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.UserToken(auth.RoleStaff)

	resp := env.CompleteAction(token, "library_checkout")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result actionResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.Equal(t, 10, result.Points)
	testutil.AssertTotalPoints(t, env, userID, 10)
}

func TestCompleteAction_BlankActionRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.UserToken(auth.RoleStudent)

	resp := env.CompleteAction(token, "   ")
	testutil.AssertStatus(t, resp, http.StatusBadRequest)
	testutil.AssertErrorCode(t, resp, "VALIDATION_ERROR")
	assert.Zero(t, testutil.CountActivity(t, env, userID))
}

func TestCompleteAction_IdempotencyKeyReplayRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.UserToken(auth.RoleTeacher)
	headers := map[string]string{
		"Authorization":   "Bearer " + token,
		"Idempotency-Key": "submit-1",
	}
	body := map[string]string{"actionType": "document_upload"}

	resp := env.POSTWithHeaders("/gamification/actions/complete", body, headers)
	testutil.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.POSTWithHeaders("/gamification/actions/complete", body, headers)
	testutil.AssertStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	testutil.AssertTotalPoints(t, env, userID, 15)
}

// ─── Read Tests ────────────────────────────────────────────────────────────

func TestReadEndpoints_AfterActivity(t *testing.T) {
	env := testutil.NewTestEnv(t)
	token, userID := env.UserToken(auth.RoleTeacher)

	for _, action := range []string{"document_upload", "document_upload", "event_create"} {
		resp := env.CompleteAction(token, action)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	var summary struct {
		UserID      string `json:"userId"`
		TotalPoints int    `json:"totalPoints"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/gamification/me", token), &summary)
	assert.Equal(t, userID, summary.UserID)
	assert.Equal(t, 60, summary.TotalPoints)

	var activity []struct {
		ActionType string `json:"actionType"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/gamification/me/activity?limit=2", token), &activity)
	require.Len(t, activity, 2)
	assert.Equal(t, "event_create", activity[0].ActionType)

	var achievements []struct {
		AchievementID string `json:"achievementId"`
		Progress      int    `json:"progress"`
		Target        int    `json:"target"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/gamification/me/achievements", token), &achievements)
	require.Len(t, achievements, 2)
	assert.Equal(t, "document_master", achievements[0].AchievementID)
	assert.Equal(t, 2, achievements[0].Progress)
	assert.Equal(t, 20, achievements[0].Target)

	var challenges []struct {
		ChallengeID string `json:"challengeId"`
		Progress    int    `json:"progress"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/gamification/me/challenges", token), &challenges)
	assert.Len(t, challenges, 2)
}

func TestLeaderboard_OrdersByPoints(t *testing.T) {
	env := testutil.NewTestEnv(t)
	lowToken, lowID := env.UserToken(auth.RoleStudent)
	highToken, highID := env.UserToken(auth.RoleTeacher)

	env.CompleteAction(lowToken, "message_send").Body.Close()
	env.CompleteAction(highToken, "training_complete").Body.Close()

	var board []struct {
		Rank        int    `json:"rank"`
		UserID      string `json:"userId"`
		TotalPoints int    `json:"totalPoints"`
	}
	testutil.DecodeJSON(t, env.AuthGET("/gamification/leaderboard", lowToken), &board)
	require.Len(t, board, 2)
	assert.Equal(t, highID, board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, lowID, board[1].UserID)
	assert.Equal(t, 5, board[1].TotalPoints)
}

func TestAdminUserView(t *testing.T) {
	env := testutil.NewTestEnv(t)
	userToken, userID := env.UserToken(auth.RoleTeacher)
	adminToken, _ := env.UserToken(auth.RoleSchoolAdmin)

	env.CompleteAction(userToken, "club_create").Body.Close()

	resp := env.AuthGET("/admin/users/"+userID+"/gamification", adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail struct {
		Points struct {
			TotalPoints int `json:"totalPoints"`
		} `json:"points"`
	}
	testutil.DecodeJSON(t, resp, &detail)
	assert.Equal(t, 35, detail.Points.TotalPoints)

	resp = env.AuthGET("/admin/users/"+userID+"/gamification", userToken)
	testutil.AssertStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}
