package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/services"
)

type PointsHandler struct {
	awards    *services.AwardService
	validator *services.ValidationHelper
}

func NewPointsHandler(awards *services.AwardService) *PointsHandler {
	return &PointsHandler{
		awards:    awards,
		validator: services.NewValidationHelper(),
	}
}

// Award grants the points of a rate-limited action to the caller
// @Summary Award action points
// @Description Award the configured points for a self-reported action; returns awarded=false once the window's cap is reached
// @Tags Points
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{limitType=string,note=string} true "Award request"
// @Success 200 {object} services.AwardResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /points/award [post]
func (h *PointsHandler) Award(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		LimitType string  `json:"limitType" validate:"required,limit_type"`
		Note      *string `json:"note,omitempty" validate:"omitempty,max=255"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	limitType, err := config.ParseLimitType(req.LimitType)
	if err != nil {
		services.SendErrorResponse(w, "Unknown limit type", http.StatusBadRequest, nil)
		return
	}
	rule := config.LimitRules[limitType]
	if !rule.SelfClaimed {
		log.Printf("[POINTS] User %d tried to self-claim %s", userID, limitType)
		services.SendErrorResponse(w, "This action is awarded by the server", http.StatusForbidden, nil)
		return
	}

	result, err := h.awards.Award(r.Context(), services.AwardRequest{
		UserID:    userID,
		LimitType: &limitType,
		Points:    rule.PointsPerAward,
		Reason:    rule.Reason,
		Note:      req.Note,
	})
	if err != nil {
		writeServiceError(w, "POINTS", err)
		return
	}

	log.Printf("[POINTS] Award %s for user %d: awarded=%v", limitType, userID, result.Awarded)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"awarded":       result.Awarded,
		"ledgerEntryId": result.LedgerEntryID(),
	})
}

// ProductClicks awards a batch of product card clicks, truncated at the lifetime cap
// @Summary Award product card clicks
// @Tags Points
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{count=int} true "Click batch"
// @Success 200 {object} services.BatchAwardResult
// @Router /points/product-clicks [post]
func (h *PointsHandler) ProductClicks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Count int `json:"count" validate:"required,gt=0,lte=100"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	rule := config.LimitRules[config.LimitProductCardClick]
	result, err := h.awards.AwardBatch(r.Context(), userID, config.LimitProductCardClick, req.Count, rule.PointsPerAward)
	if err != nil {
		writeServiceError(w, "POINTS", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// LimitStatus reports the caller's usage of one limit in the current window
// @Summary Limit status
// @Tags Points
// @Produce json
// @Security BearerAuth
// @Param limitType path string true "Limit type"
// @Success 200 {object} services.LimitStatus
// @Router /points/limits/{limitType} [get]
func (h *PointsHandler) LimitStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	limitType, err := config.ParseLimitType(chi.URLParam(r, "limitType"))
	if err != nil {
		services.SendErrorResponse(w, "Unknown limit type", http.StatusBadRequest, nil)
		return
	}

	status, err := h.awards.GetLimitStatus(r.Context(), userID, limitType)
	if err != nil {
		writeServiceError(w, "POINTS", err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// History returns the caller's ledger, newest first.
func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	entries, err := h.awards.Ledger().History(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, "POINTS", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
	})
}
