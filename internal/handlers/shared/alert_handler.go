package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusguard/internal/models"
	"campusguard/internal/services"
	"campusguard/internal/utils"
	"campusguard/internal/validators"
)

// alertHandler carries the lifecycle endpoints SOS and escort share.
type alertHandler struct {
	service  services.EmergencyService
	kind     models.AlertKind
	resource string
}

// Acknowledge is the guardian claim; for escorts it is exposed as accept.
func (h *alertHandler) Acknowledge(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	alertID, ok := alertIDParam(c)
	if !ok {
		return
	}

	alert, err := h.service.Acknowledge(c.Request.Context(), h.kind, alertID, userID)
	if err != nil {
		respondServiceError(c, err, h.resource)
		return
	}

	utils.SuccessResponse(c, h.resource+" acknowledged", alert)
}

func (h *alertHandler) Resolve(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	alertID, ok := alertIDParam(c)
	if !ok {
		return
	}

	var req validators.ResolveRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	alert, err := h.service.Resolve(c.Request.Context(), h.kind, alertID, userID, validators.SanitizeInput(req.Notes))
	if err != nil {
		respondServiceError(c, err, h.resource)
		return
	}

	utils.SuccessResponse(c, h.resource+" resolved", alert)
}

func (h *alertHandler) List(c *gin.Context) {
	status, ok := parseStatus(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	alerts, total := h.service.List(c.Request.Context(), models.AlertFilter{Kind: h.kind, Status: status}, params)

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}
	utils.SuccessResponseWithMeta(c, h.resource+"s retrieved", alerts, meta)
}

// Get lets guardians read any alert; students only their own.
func (h *alertHandler) Get(c *gin.Context) {
	userID, role, ok := identity(c)
	if !ok {
		return
	}
	alertID, ok := alertIDParam(c)
	if !ok {
		return
	}

	alert, err := h.service.Get(c.Request.Context(), h.kind, alertID)
	if err != nil {
		respondServiceError(c, err, h.resource)
		return
	}
	if !role.IsGuardian() && alert.RequesterID != userID {
		utils.ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", "Not your "+h.resource)
		return
	}

	utils.SuccessResponse(c, h.resource+" retrieved", alert)
}
