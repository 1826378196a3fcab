package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/schoolerp/gamification/internal/auth"
	"github.com/schoolerp/gamification/internal/domain"
	"github.com/schoolerp/gamification/internal/service"
)

// TrackHandler lets other ERP modules report user actions as a side effect
// of their own operations.
type TrackHandler struct {
	svc      *service.GamificationService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewTrackHandler creates a new TrackHandler.
func NewTrackHandler(svc *service.GamificationService, validate *validator.Validate, logger *slog.Logger) *TrackHandler {
	if validate == nil {
		validate = NewValidator()
	}
	return &TrackHandler{svc: svc, validate: validate, logger: logger}
}

type trackRequest struct {
	UserID     string          `json:"userId" validate:"notblank,max=128"`
	ActionType string          `json:"actionType" validate:"notblank,max=256"`
	Metadata   json.RawMessage `json:"metadata"`
}

// Track handles POST /internal/actions/track. Gamification failures are
// logged by the tracker and never reported to the calling module.
func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		RespondError(w, validationError(err))
		return
	}

	module := ""
	if tok := auth.ServiceFromContext(r.Context()); tok != nil {
		module = tok.Sub
	}
	h.logger.Debug("tracking action for module",
		"module", module,
		"user_id", req.UserID,
		"action_type", req.ActionType,
	)

	h.svc.Track(r.Context(), req.UserID, req.ActionType, req.Metadata)
	RespondJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}
