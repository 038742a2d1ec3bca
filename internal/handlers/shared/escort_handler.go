package handlers

import (
	"github.com/gin-gonic/gin"

	"campusguard/internal/models"
	"campusguard/internal/services"
	"campusguard/internal/utils"
	"campusguard/internal/validators"
)

type EscortHandler struct {
	alertHandler
}

func NewEscortHandler(service services.EmergencyService) *EscortHandler {
	return &EscortHandler{alertHandler{service: service, kind: models.AlertKindEscort, resource: "Escort request"}}
}

func (h *EscortHandler) Request(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	var req validators.EscortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := validators.ValidateEscortRequest(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	dest := req.Destination.Location()
	alert, err := h.service.RequestEscort(c.Request.Context(), userID, services.EscortRequest{
		Location:         req.Location(),
		Destination:      &dest,
		DestinationLabel: req.DestinationLabel,
	})
	if err != nil {
		respondServiceError(c, err, h.resource)
		return
	}

	utils.CreatedResponse(c, "Escort requested", alert)
}

func (h *EscortHandler) Decline(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	alertID, ok := alertIDParam(c)
	if !ok {
		return
	}

	alert, err := h.service.DeclineEscort(c.Request.Context(), alertID, userID)
	if err != nil {
		respondServiceError(c, err, h.resource)
		return
	}

	utils.SuccessResponse(c, "Escort request declined", alert)
}
