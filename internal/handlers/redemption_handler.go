package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rewardloop/backend/internal/models"
	"github.com/rewardloop/backend/internal/services"
)

type RedemptionHandler struct {
	service   *services.RedemptionService
	validator *services.ValidationHelper
}

func NewRedemptionHandler(service *services.RedemptionService) *RedemptionHandler {
	return &RedemptionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Redeem creates a pending redemption and debits its cost
// @Summary Redeem a reward
// @Tags Rewards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param rewardId path int true "Reward ID"
// @Param request body models.ReceiverInfo true "Shipping details"
// @Success 201 {object} models.RedemptionRequest
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /rewards/{rewardId}/redeem [post]
func (h *RedemptionHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	rewardID, err := strconv.ParseInt(chi.URLParam(r, "rewardId"), 10, 64)
	if err != nil || rewardID <= 0 {
		services.SendErrorResponse(w, "Invalid reward id", http.StatusBadRequest, nil)
		return
	}

	var receiver models.ReceiverInfo
	if !decodeJSON(w, r, &receiver) {
		return
	}
	if err := h.validator.ValidateStruct(&receiver); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	req, err := h.service.Redeem(r.Context(), userID, rewardID, receiver)
	if err != nil {
		writeServiceError(w, "REDEEM", err)
		return
	}

	log.Printf("[REDEEM] Created request %d for user %d", req.ID, userID)
	writeJSON(w, http.StatusCreated, req)
}

// List returns the caller's redemption requests.
func (h *RedemptionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	requests, err := h.service.ListRedemptions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "REDEEM", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"redemptions": requests,
	})
}
