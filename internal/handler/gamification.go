package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/schoolerp/gamification/internal/auth"
	"github.com/schoolerp/gamification/internal/domain"
	"github.com/schoolerp/gamification/internal/guard"
	"github.com/schoolerp/gamification/internal/repository"
	"github.com/schoolerp/gamification/internal/service"
)

// IdempotencyHeader carries a client-chosen key for the complete-action call.
const IdempotencyHeader = "Idempotency-Key"

// GamificationHandler handles the user-facing gamification endpoints.
type GamificationHandler struct {
	svc      *service.GamificationService
	idem     *guard.IdempotencyGuard
	limiter  *guard.RateLimiter
	validate *validator.Validate
	logger   *slog.Logger
}

// NewGamificationHandler creates a new GamificationHandler. idem and limiter
// may be nil.
func NewGamificationHandler(
	svc *service.GamificationService,
	idem *guard.IdempotencyGuard,
	limiter *guard.RateLimiter,
	validate *validator.Validate,
	logger *slog.Logger,
) *GamificationHandler {
	if validate == nil {
		validate = NewValidator()
	}
	return &GamificationHandler{svc: svc, idem: idem, limiter: limiter, validate: validate, logger: logger}
}

type completeActionRequest struct {
	ActionType string          `json:"actionType" validate:"notblank,max=256"`
	Metadata   json.RawMessage `json:"metadata"`
}

type completeActionFailure struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CompleteAction handles POST /gamification/actions/complete.
func (h *GamificationHandler) CompleteAction(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	if h.limiter != nil {
		if res := h.limiter.Check(r.Context(), caller.UserID); !res.Allowed {
			RespondError(w, domain.ErrRateLimited(res.Reason))
			return
		}
	}

	var req completeActionRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		RespondError(w, validationError(err))
		return
	}

	key := r.Header.Get(IdempotencyHeader)
	if h.idem != nil {
		if res := h.idem.Check(r.Context(), caller.UserID, key); !res.Allowed {
			RespondError(w, domain.ErrDuplicateAction(key))
			return
		}
	}

	result, err := h.svc.ProcessAction(r.Context(), caller.UserID, req.ActionType, req.Metadata)
	if err != nil {
		// Keep the key once the points are saved so a retry cannot credit twice.
		var partial *service.PartialCreditError
		if h.idem != nil && !errors.As(err, &partial) {
			h.idem.Remove(caller.UserID, key)
		}
		if appErr, ok := domain.AsAppError(err); ok && appErr.Code == domain.CodeValidation {
			RespondError(w, appErr)
			return
		}
		h.logger.Error("complete action failed",
			"user_id", caller.UserID,
			"action_type", req.ActionType,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		RespondJSON(w, http.StatusInternalServerError, completeActionFailure{
			Success: false,
			Code:    domain.CodeStorage,
			Message: "Failed to complete action",
		})
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// GetSummary handles GET /gamification/me.
func (h *GamificationHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	rec, err := h.svc.Summary(r.Context(), caller.UserID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

// ListActivity handles GET /gamification/me/activity?limit=.
func (h *GamificationHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	entries, err := h.svc.Activity(r.Context(), caller.UserID, limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, nonNilSlice(entries))
}

// ListAchievements handles GET /gamification/me/achievements.
func (h *GamificationHandler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	views, err := h.svc.Achievements(r.Context(), caller.UserID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, views)
}

// ListChallenges handles GET /gamification/me/challenges.
func (h *GamificationHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	views, err := h.svc.Challenges(r.Context(), caller.UserID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, views)
}

// Leaderboard handles GET /gamification/leaderboard?limit=.
func (h *GamificationHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	board, err := h.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, nonNilSlice(board))
}

// Catalog handles GET /gamification/catalog.
func (h *GamificationHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.svc.Catalog())
}

func callerFromRequest(r *http.Request) (*domain.Caller, error) {
	caller := auth.CallerFromContext(r.Context())
	if caller == nil || caller.UserID == "" {
		return nil, domain.ErrUnauthorized("no auth context")
	}
	return caller, nil
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return repository.DefaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, domain.ErrValidation("limit must be a positive integer")
	}
	return repository.ClampLimit(n), nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
