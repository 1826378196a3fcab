package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/schoolerp/gamification/internal/domain"
	"github.com/schoolerp/gamification/internal/handler"
	"github.com/schoolerp/gamification/internal/repository"
	"github.com/schoolerp/gamification/internal/service"
)

// GamificationAdminHandler lets school administrators inspect a user's
// gamification state.
type GamificationAdminHandler struct {
	svc *service.GamificationService
}

// NewGamificationAdminHandler creates a new GamificationAdminHandler.
func NewGamificationAdminHandler(svc *service.GamificationService) *GamificationAdminHandler {
	return &GamificationAdminHandler{svc: svc}
}

type userDetail struct {
	Points         *domain.UserPoints        `json:"points"`
	Achievements   []service.AchievementView `json:"achievements"`
	Challenges     []service.ChallengeView   `json:"challenges"`
	RecentActivity []domain.ActivityEntry    `json:"recentActivity"`
}

// GetUser handles GET /admin/users/{userID}/gamification.
func (h *GamificationAdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := domain.ValidateUserID(userID); err != nil {
		handler.RespondError(w, domain.ErrValidation(err.Error()))
		return
	}
	ctx := r.Context()

	points, err := h.svc.Summary(ctx, userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	achievements, err := h.svc.Achievements(ctx, userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	challenges, err := h.svc.Challenges(ctx, userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	activity, err := h.svc.Activity(ctx, userID, repository.DefaultListLimit)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	if activity == nil {
		activity = []domain.ActivityEntry{}
	}

	handler.RespondJSON(w, http.StatusOK, userDetail{
		Points:         points,
		Achievements:   achievements,
		Challenges:     challenges,
		RecentActivity: activity,
	})
}
