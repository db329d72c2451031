package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rewardloop/backend/internal/config"
	"github.com/rewardloop/backend/internal/middleware"
	"github.com/rewardloop/backend/internal/models"
	"github.com/rewardloop/backend/internal/services"
)

type AdminHandler struct {
	awards      *services.AwardService
	redemptions *services.RedemptionService
	ranking     *services.RankingService
	loc         *time.Location
	validator   *services.ValidationHelper
}

func NewAdminHandler(awards *services.AwardService, redemptions *services.RedemptionService, ranking *services.RankingService, loc *time.Location) *AdminHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AdminHandler{
		awards:      awards,
		redemptions: redemptions,
		ranking:     ranking,
		loc:         loc,
		validator:   services.NewValidationHelper(),
	}
}

// Decide moves a redemption request to APPROVED, REJECTED or DELIVERED
// @Summary Decide a redemption
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Redemption ID"
// @Param request body object{status=string,rejectionReason=string} true "Decision"
// @Success 200 {object} models.RedemptionRequest
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/redemptions/{id}/decide [post]
func (h *AdminHandler) Decide(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid redemption id", http.StatusBadRequest, nil)
		return
	}

	var req struct {
		Status          string `json:"status" validate:"required,oneof=APPROVED REJECTED DELIVERED"`
		RejectionReason string `json:"rejectionReason,omitempty" validate:"max=500"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	redemption, err := h.redemptions.Decide(r.Context(), services.DecideRequest{
		RedemptionID:    id,
		Status:          models.RedemptionStatus(req.Status),
		AdminID:         adminID,
		IsAdmin:         middleware.IsAdmin(r.Context()),
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		writeServiceError(w, "ADMIN", err)
		return
	}

	writeJSON(w, http.StatusOK, redemption)
}

// AwardFor records a rate-limited action on behalf of a user. Server-side flows such as
// post creation call it for actions the user cannot claim directly.
func (h *AdminHandler) AwardFor(w http.ResponseWriter, r *http.Request) {
	callerID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID    int64   `json:"userId" validate:"required,gt=0"`
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

	result, err := h.awards.Award(r.Context(), services.AwardRequest{
		UserID:    req.UserID,
		LimitType: &limitType,
		Points:    rule.PointsPerAward,
		Reason:    rule.Reason,
		Note:      req.Note,
	})
	if err != nil {
		writeServiceError(w, "ADMIN", err)
		return
	}

	log.Printf("[ADMIN] %d recorded %s for user %d: awarded=%v", callerID, limitType, req.UserID, result.Awarded)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"awarded":       result.Awarded,
		"ledgerEntryId": result.LedgerEntryID(),
	})
}

// Grant credits or corrects a user's balance outside any limit.
func (h *AdminHandler) Grant(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID int64  `json:"userId" validate:"required,gt=0"`
		Points int64  `json:"points" validate:"required"`
		Note   string `json:"note,omitempty" validate:"max=255"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.awards.GrantAdmin(r.Context(), adminID, middleware.IsAdmin(r.Context()), req.UserID, req.Points, req.Note)
	if err != nil {
		writeServiceError(w, "ADMIN", err)
		return
	}

	log.Printf("[ADMIN] Admin %d granted %d points to user %d", adminID, req.Points, req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"ledgerEntryId": result.LedgerEntryID(),
		"balance":       result.Entry.BalanceAfter,
	})
}

// RunRanking replays the ranking job for one month, e.g. {"month": "2026-08"}.
func (h *AdminHandler) RunRanking(w http.ResponseWriter, r *http.Request) {
	adminID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Month string `json:"month" validate:"required,month_key"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	month, err := time.ParseInLocation("2006-01", req.Month, h.loc)
	if err != nil {
		services.SendErrorResponse(w, "month must look like YYYY-MM", http.StatusBadRequest, nil)
		return
	}
	start, end := services.MonthBounds(month, h.loc)

	log.Printf("[ADMIN] Admin %d replaying ranking for %s", adminID, req.Month)
	rankings, err := h.ranking.RunRanking(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, "ADMIN", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"month":    services.MonthKey(start),
		"rankings": rankings,
	})
}
